package types

import (
	"fmt"
	"time"
)

// TensorType identifies which engine owns a tensor record.
type TensorType string

// The three tensor types with a "current record" per domain.
const (
	TensorMemory    TensorType = "memory"
	TensorSentiment TensorType = "sentiment"
	TensorGrounding TensorType = "grounding"
)

// Valid reports whether t is a known tensor type.
func (t TensorType) Valid() bool {
	switch t {
	case TensorMemory, TensorSentiment, TensorGrounding:
		return true
	}
	return false
}

// Sub-score keys shared between engines and the storage layer. Every value
// stored under these keys is bounded to [0,1].
const (
	// Memory tensor components.
	ScoreRecency      = "recency"
	ScoreFrequency    = "frequency"
	ScoreSignificance = "significance"
	ScorePersistence  = "persistence"

	// Sentiment distribution and emotional profile.
	ScorePositive    = "positive"
	ScoreNegative    = "negative"
	ScoreNeutral     = "neutral"
	ScoreMixed       = "mixed"
	ScoreConfidence  = "confidence"
	ScoreExcitement  = "excitement"
	ScoreConcern     = "concern"
	ScoreUrgency     = "urgency"
	ScoreOpportunity = "opportunity"
	ScoreVolatility  = "volatility"

	// Grounding components and reliability buckets.
	ScoreFactualAccuracy   = "factual_accuracy"
	ScoreDataConsistency   = "data_consistency"
	ScoreSourceReliability = "source_reliability"
	ScoreTemporalStability = "temporal_stability"
	ScoreCrossValidation   = "cross_validation"
	ScoreHighConfRatio     = "high_confidence_ratio"
	ScoreMediumConfRatio   = "medium_confidence_ratio"
	ScoreLowConfRatio      = "low_confidence_ratio"
	ScoreUnverifiedRatio   = "unverified_ratio"
)

// Market sentiment labels assigned by the sentiment engine.
const (
	MarketBullish  = "bullish"
	MarketBearish  = "bearish"
	MarketNeutral  = "neutral"
	MarketVolatile = "volatile"
)

// Grounding strength labels assigned by the grounding engine.
const (
	GroundingStrong   = "strong"
	GroundingModerate = "moderate"
	GroundingWeak     = "weak"
	GroundingUnstable = "unstable"
)

// DefaultDecayRate is the per-sweep multiplier applied to the recency
// component of stale memory tensors.
const DefaultDecayRate = 0.95

// TensorRecord holds the current computed tensor for a (domain, tensor type)
// pair: the aggregate vector, the named sub-component scores, the bounded
// composite and a classification label where applicable.
//
// Invariant: at most one current record exists per (domain, tensor type).
// Recomputation overwrites the current record (upsert), never appends;
// time-series history lives in the separate tensor_series table.
type TensorRecord struct {
	// ID uniquely identifies the record.
	ID string

	// DomainID references the scored domain.
	DomainID string

	// TensorType is the owning engine's tensor type.
	TensorType TensorType

	// Vector is the aggregate embedding for the domain. Length equals the
	// system-wide embedding dimension; all-zero when no embeddings exist.
	Vector []float64

	// SubScores maps Score* keys to bounded component values.
	SubScores map[string]float64

	// Composite is the single [0,1] summary value.
	Composite float64

	// Label is the classification of the composite (market sentiment,
	// grounding strength). Empty for the memory tensor.
	Label string

	// DecayRate is the multiplier the decay sweep applies to recency.
	DecayRate float64

	// LastAccessedAt is when the tensor was last read or recomputed.
	LastAccessedAt time.Time

	// CreatedAt is when the record was first written.
	CreatedAt time.Time

	// UpdatedAt is when the record was last upserted.
	UpdatedAt time.Time
}

// Validate checks the record's invariants before it is persisted.
func (r *TensorRecord) Validate() error {
	if r.DomainID == "" {
		return fmt.Errorf("tensor record: domain id is required")
	}
	if !r.TensorType.Valid() {
		return fmt.Errorf("tensor record: unknown tensor type %q", r.TensorType)
	}
	if r.Composite < 0 || r.Composite > 1 {
		return fmt.Errorf("tensor record: composite %f: %w", r.Composite, ErrInvalidScore)
	}
	for key, score := range r.SubScores {
		if score < 0 || score > 1 {
			return fmt.Errorf("tensor record: sub-score %s=%f: %w", key, score, ErrInvalidScore)
		}
	}
	return nil
}

// SeriesPoint is one appended observation in a tensor's time series.
type SeriesPoint struct {
	// DomainID references the observed domain.
	DomainID string

	// TensorType is the series the point belongs to.
	TensorType TensorType

	// Value is the composite score at observation time.
	Value float64

	// At is the observation timestamp.
	At time.Time
}

// Sentiment anomaly types recorded by the sentiment engine.
const (
	AnomalyPositiveSpike  = "positive_spike"
	AnomalyNegativeSpike  = "negative_spike"
	AnomalyHighVolatility = "high_volatility"
)

// SentimentAnomaly records a statistically unusual sentiment observation.
type SentimentAnomaly struct {
	// ID uniquely identifies the anomaly record.
	ID string

	// DomainID references the affected domain.
	DomainID string

	// AnomalyType is one of the Anomaly* constants.
	AnomalyType string

	// Severity is the bounded anomaly severity.
	Severity float64

	// ZScore is the observed deviation in standard deviations, when the
	// anomaly is spike-based. Zero for volatility anomalies.
	ZScore float64

	// DetectedAt is when the anomaly was recorded.
	DetectedAt time.Time
}
