package types

import "time"

// AgreementLevel summarises cross-model agreement about a domain.
type AgreementLevel string

// Agreement levels, strongest to weakest.
const (
	AgreementStrong     AgreementLevel = "strong"
	AgreementModerate   AgreementLevel = "moderate"
	AgreementWeak       AgreementLevel = "weak"
	AgreementConflicted AgreementLevel = "conflicted"
)

// DissensusPoint is a specific topic where model responses disagree
// significantly.
type DissensusPoint struct {
	// Topic is the disputed key phrase.
	Topic string

	// PromptType is the prompt the disagreement was observed under.
	PromptType string

	// Divergence is 1 minus the fraction of models mentioning the topic.
	Divergence float64

	// Models lists the models implicated in the disagreement.
	Models []string
}

// ConsensusScore is one append-only record per scoring run per domain.
type ConsensusScore struct {
	// ID uniquely identifies the record.
	ID string

	// DomainID references the scored domain.
	DomainID string

	// Composite is the bounded consensus score.
	Composite float64

	// AgreementLevel classifies the composite.
	AgreementLevel AgreementLevel

	// ModelAgreement is the pairwise cross-model agreement component.
	ModelAgreement float64

	// TemporalConsistency is the per-model stability component.
	TemporalConsistency float64

	// CrossPromptAlignment is the per-model cross-prompt component.
	CrossPromptAlignment float64

	// ConfidenceAlignment is the confidence coherence component.
	ConfidenceAlignment float64

	// DissensusPoints lists the most disagreed-upon topics, at most ten.
	DissensusPoints []DissensusPoint

	// ComputedAt is when the scoring run completed.
	ComputedAt time.Time
}

// ModelAgreement is the agreement matrix entry for one unordered pair of
// models within a domain. Entries are upserted, latest wins.
type ModelAgreement struct {
	// DomainID references the domain the pair answered about.
	DomainID string

	// ModelA and ModelB are the pair, ordered lexicographically so the
	// unordered pair maps to exactly one row.
	ModelA string
	ModelB string

	// Score is the latest pairwise agreement in [0,1].
	Score float64

	// ComparisonCount is how many response pairs contributed to Score.
	ComparisonCount int

	// UpdatedAt is when the entry was last upserted.
	UpdatedAt time.Time
}

// NormalizePair orders ModelA/ModelB lexicographically so the unordered
// model pair always produces the same matrix key.
func (m *ModelAgreement) NormalizePair() {
	if m.ModelA > m.ModelB {
		m.ModelA, m.ModelB = m.ModelB, m.ModelA
	}
}

// Consensus insight types.
const (
	InsightEmergingAgreement  = "emerging_agreement"
	InsightConsensusShift     = "consensus_shift"
	InsightPersistentConflict = "persistent_conflict"
)

// Insight impact levels.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
)

// ConsensusInsight is emitted when agreement shifts significantly or
// remains persistently conflicted. Append-only, optionally acknowledged.
type ConsensusInsight struct {
	// ID uniquely identifies the insight.
	ID string

	// DomainID references the affected domain.
	DomainID string

	// InsightType is one of the Insight* constants.
	InsightType string

	// Impact is ImpactHigh or ImpactMedium.
	Impact string

	// Description is a human-readable summary.
	Description string

	// CreatedAt is when the insight was emitted.
	CreatedAt time.Time

	// AcknowledgedAt is set when a caller acknowledges the insight.
	AcknowledgedAt *time.Time
}
