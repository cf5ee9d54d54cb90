package postgres

import "fmt"

// SchemaFor renders the embedded PostgreSQL schema for the given embedding
// dimension. Response embeddings use the pgvector extension; score vectors
// are plain float8 arrays because they are only ever read back whole,
// never searched.
func SchemaFor(dim int) string {
	return fmt.Sprintf(schemaTemplate, dim)
}

const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS domains (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL,
	cohort TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS domain_responses (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	domain_id UUID NOT NULL REFERENCES domains(id),
	model TEXT NOT NULL,
	prompt_type TEXT NOT NULL,
	content TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	confidence FLOAT NOT NULL,
	embedding vector(%d),
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_responses_domain_created
	ON domain_responses(domain_id, created_at);

CREATE TABLE IF NOT EXISTS memory_notes (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	domain_id UUID NOT NULL REFERENCES domains(id),
	note_type TEXT NOT NULL,
	content TEXT NOT NULL,
	patterns TEXT[],
	relationships JSONB,
	confidence FLOAT NOT NULL,
	effectiveness FLOAT NOT NULL DEFAULT 0,
	alert_priority TEXT NOT NULL DEFAULT 'low',
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_notes_domain_created
	ON memory_notes(domain_id, created_at DESC);

CREATE TABLE IF NOT EXISTS tensors (
	id UUID PRIMARY KEY,
	domain_id UUID NOT NULL REFERENCES domains(id),
	tensor_type TEXT NOT NULL,
	vector FLOAT[] NOT NULL,
	sub_scores JSONB NOT NULL,
	composite FLOAT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	decay_rate FLOAT NOT NULL DEFAULT 0.95,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(domain_id, tensor_type)
);
CREATE INDEX IF NOT EXISTS idx_tensors_composite ON tensors(composite DESC);

CREATE TABLE IF NOT EXISTS tensor_series (
	domain_id UUID NOT NULL,
	tensor_type TEXT NOT NULL,
	value FLOAT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_series_domain_type
	ON tensor_series(domain_id, tensor_type, observed_at);

CREATE TABLE IF NOT EXISTS access_patterns (
	domain_id UUID NOT NULL,
	accessed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sentiment_anomalies (
	id UUID PRIMARY KEY,
	domain_id UUID NOT NULL,
	anomaly_type TEXT NOT NULL,
	severity FLOAT NOT NULL,
	z_score FLOAT NOT NULL DEFAULT 0,
	detected_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_results (
	id UUID PRIMARY KEY,
	domain_id UUID NOT NULL,
	drift_score FLOAT NOT NULL,
	drift_type TEXT NOT NULL,
	drift_direction TEXT NOT NULL,
	concept_drift FLOAT NOT NULL,
	data_drift FLOAT NOT NULL,
	model_drift FLOAT NOT NULL,
	temporal_drift FLOAT NOT NULL,
	severity TEXT NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drift_domain_detected
	ON drift_results(domain_id, detected_at DESC);

CREATE TABLE IF NOT EXISTS drift_alerts (
	id UUID PRIMARY KEY,
	domain_id UUID NOT NULL,
	alert_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	description TEXT NOT NULL,
	recommendations TEXT[],
	created_at TIMESTAMPTZ NOT NULL,
	acknowledged_at TIMESTAMPTZ,
	resolved_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS consensus_scores (
	id UUID PRIMARY KEY,
	domain_id UUID NOT NULL,
	composite FLOAT NOT NULL,
	agreement_level TEXT NOT NULL,
	model_agreement FLOAT NOT NULL,
	temporal_consistency FLOAT NOT NULL,
	cross_prompt_alignment FLOAT NOT NULL,
	confidence_alignment FLOAT NOT NULL,
	dissensus_points JSONB,
	computed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consensus_domain_computed
	ON consensus_scores(domain_id, computed_at DESC);

CREATE TABLE IF NOT EXISTS model_agreement (
	domain_id UUID NOT NULL,
	model_a TEXT NOT NULL,
	model_b TEXT NOT NULL,
	score FLOAT NOT NULL,
	comparison_count INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (domain_id, model_a, model_b)
);

CREATE TABLE IF NOT EXISTS consensus_insights (
	id UUID PRIMARY KEY,
	domain_id UUID NOT NULL,
	insight_type TEXT NOT NULL,
	impact TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	acknowledged_at TIMESTAMPTZ
);
`
