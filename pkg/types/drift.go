package types

import "time"

// DriftType classifies the temporal shape of a detected drift.
type DriftType string

// Drift type classifications.
const (
	DriftNone     DriftType = "none"
	DriftSudden   DriftType = "sudden"
	DriftGradual  DriftType = "gradual"
	DriftSeasonal DriftType = "seasonal"
)

// DriftDirection indicates whether the domain's signals are improving,
// degrading or ambiguous.
type DriftDirection string

// Drift directions.
const (
	DirectionPositive DriftDirection = "positive"
	DirectionNegative DriftDirection = "negative"
	DirectionNeutral  DriftDirection = "neutral"
)

// Severity bands for drift results and alerts.
type Severity string

// Severity levels, lowest to highest.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityForScore maps a composite drift score to its severity band.
// The bands are contiguous and non-overlapping: critical >= 0.7,
// high [0.5, 0.7), medium [0.3, 0.5), low < 0.3.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 0.7:
		return SeverityCritical
	case score >= 0.5:
		return SeverityHigh
	case score >= 0.3:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Alert types emitted by the drift detector.
const (
	AlertDriftDetected     = "drift_detected"
	AlertDriftAccelerating = "drift_accelerating"
)

// DriftResult is one append-only record per detection run per domain.
// Results are never mutated after creation.
type DriftResult struct {
	// ID uniquely identifies the result.
	ID string

	// DomainID references the analysed domain.
	DomainID string

	// DriftScore is the bounded composite drift score.
	DriftScore float64

	// DriftType is the temporal classification of the drift.
	DriftType DriftType

	// Direction indicates whether the shift is favourable.
	Direction DriftDirection

	// ConceptDrift measures semantic pattern shift between windows.
	ConceptDrift float64

	// DataDrift measures statistical shift in the response corpus.
	DataDrift float64

	// ModelDrift measures per-model behaviour shift.
	ModelDrift float64

	// TemporalDrift measures trend instability over time.
	TemporalDrift float64

	// Severity is derived from DriftScore via SeverityForScore.
	Severity Severity

	// DetectedAt is when the detection run completed.
	DetectedAt time.Time
}

// DriftAlert is created when a drift result crosses the detection threshold.
// After creation an alert supports exactly two transitions: acknowledge,
// then resolve. No other field is ever mutated.
type DriftAlert struct {
	// ID uniquely identifies the alert.
	ID string

	// DomainID references the affected domain.
	DomainID string

	// AlertType is AlertDriftDetected for critical severity, otherwise
	// AlertDriftAccelerating.
	AlertType string

	// Severity mirrors the triggering drift result's severity.
	Severity Severity

	// Description is a human-readable summary of the drift.
	Description string

	// Recommendations lists suggested actions, one per triggered component.
	Recommendations []string

	// CreatedAt is when the alert was raised.
	CreatedAt time.Time

	// AcknowledgedAt is set by the acknowledge transition.
	AcknowledgedAt *time.Time

	// ResolvedAt is set by the resolve transition.
	ResolvedAt *time.Time
}
