package sqlite

// Schema is the embedded SQLite schema for the tensorcore store. The
// process entry point may instead apply the SQL files in migrations/; the
// statements are kept in sync. Vectors, sub-scores and other structured
// columns are stored as JSON text.
const Schema = `
CREATE TABLE IF NOT EXISTS domains (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	cohort TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS domain_responses (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id),
	model TEXT NOT NULL,
	prompt_type TEXT NOT NULL,
	content TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	confidence REAL NOT NULL,
	embedding TEXT,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_responses_domain_created
	ON domain_responses(domain_id, created_at);

CREATE TABLE IF NOT EXISTS memory_notes (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id),
	note_type TEXT NOT NULL,
	content TEXT NOT NULL,
	patterns TEXT,
	relationships TEXT,
	confidence REAL NOT NULL,
	effectiveness REAL NOT NULL DEFAULT 0,
	alert_priority TEXT NOT NULL DEFAULT 'low',
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_notes_domain_created
	ON memory_notes(domain_id, created_at DESC);

CREATE TABLE IF NOT EXISTS tensors (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL REFERENCES domains(id),
	tensor_type TEXT NOT NULL,
	vector TEXT NOT NULL,
	sub_scores TEXT NOT NULL,
	composite REAL NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	decay_rate REAL NOT NULL DEFAULT 0.95,
	last_accessed_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(domain_id, tensor_type)
);

CREATE TABLE IF NOT EXISTS tensor_series (
	domain_id TEXT NOT NULL,
	tensor_type TEXT NOT NULL,
	value REAL NOT NULL,
	observed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_series_domain_type
	ON tensor_series(domain_id, tensor_type, observed_at);

CREATE TABLE IF NOT EXISTS access_patterns (
	domain_id TEXT NOT NULL,
	accessed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sentiment_anomalies (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL,
	anomaly_type TEXT NOT NULL,
	severity REAL NOT NULL,
	z_score REAL NOT NULL DEFAULT 0,
	detected_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS drift_results (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL,
	drift_score REAL NOT NULL,
	drift_type TEXT NOT NULL,
	drift_direction TEXT NOT NULL,
	concept_drift REAL NOT NULL,
	data_drift REAL NOT NULL,
	model_drift REAL NOT NULL,
	temporal_drift REAL NOT NULL,
	severity TEXT NOT NULL,
	detected_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drift_domain_detected
	ON drift_results(domain_id, detected_at DESC);

CREATE TABLE IF NOT EXISTS drift_alerts (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL,
	alert_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	description TEXT NOT NULL,
	recommendations TEXT,
	created_at TIMESTAMP NOT NULL,
	acknowledged_at TIMESTAMP,
	resolved_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS consensus_scores (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL,
	composite REAL NOT NULL,
	agreement_level TEXT NOT NULL,
	model_agreement REAL NOT NULL,
	temporal_consistency REAL NOT NULL,
	cross_prompt_alignment REAL NOT NULL,
	confidence_alignment REAL NOT NULL,
	dissensus_points TEXT,
	computed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consensus_domain_computed
	ON consensus_scores(domain_id, computed_at DESC);

CREATE TABLE IF NOT EXISTS model_agreement (
	domain_id TEXT NOT NULL,
	model_a TEXT NOT NULL,
	model_b TEXT NOT NULL,
	score REAL NOT NULL,
	comparison_count INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (domain_id, model_a, model_b)
);

CREATE TABLE IF NOT EXISTS consensus_insights (
	id TEXT PRIMARY KEY,
	domain_id TEXT NOT NULL,
	insight_type TEXT NOT NULL,
	impact TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	acknowledged_at TIMESTAMP
);
`
