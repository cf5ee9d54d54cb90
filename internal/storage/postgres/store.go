// Package postgres implements the tensorcore storage contracts on
// PostgreSQL. Response embeddings are stored with the pgvector extension;
// structured score columns use JSONB and native arrays via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db  *sql.DB
	dim int
}

// New opens a PostgreSQL connection pool, verifies connectivity and applies
// the embedded schema. dim is the system-wide embedding dimension; it sizes
// the pgvector column and embeddings read from the store are validated
// against it.
func New(dsn string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("postgres: embedding dimension must be positive, got %d", dim)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	if _, err := db.Exec(SchemaFor(dim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to create schema: %w", err)
	}

	return &Store{db: db, dim: dim}, nil
}

// DB exposes the underlying connection for the migration manager.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListDomains implements storage.ResponseStore.
func (s *Store) ListDomains(ctx context.Context) ([]types.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cohort, created_at
		FROM domains
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []types.Domain
	for rows.Next() {
		var d types.Domain
		if err := rows.Scan(&d.ID, &d.Name, &d.Cohort, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// ListResponses implements storage.ResponseStore. Embeddings whose
// dimension does not match the configured one are dropped rather than
// propagated, so one bad row cannot poison a vector aggregate.
func (s *Store) ListResponses(ctx context.Context, domainID string, since time.Time) ([]types.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, model, prompt_type, content, fingerprint,
		       confidence, embedding, response_time_ms, created_at
		FROM domain_responses
		WHERE domain_id = $1 AND created_at >= $2
		ORDER BY created_at ASC
	`, domainID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []types.Response
	for rows.Next() {
		var r types.Response
		var embedding pgvector.Vector
		if err := rows.Scan(&r.ID, &r.DomainID, &r.Model, &r.PromptType, &r.Content,
			&r.Fingerprint, &r.Confidence, &embedding, &r.ResponseTimeMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan response: %w", err)
		}
		if slice := embedding.Slice(); len(slice) == s.dim {
			r.Embedding = make([]float64, len(slice))
			for i, v := range slice {
				r.Embedding[i] = float64(v)
			}
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// ListMemoryNotes implements storage.ResponseStore.
func (s *Store) ListMemoryNotes(ctx context.Context, domainID string, limit int) ([]types.MemoryNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, note_type, content, patterns, relationships,
		       confidence, effectiveness, alert_priority, access_count,
		       last_accessed_at, created_at
		FROM memory_notes
		WHERE domain_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, domainID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list memory notes: %w", err)
	}
	defer rows.Close()

	var notes []types.MemoryNote
	for rows.Next() {
		var n types.MemoryNote
		var relationships []byte
		var lastAccessed sql.NullTime
		if err := rows.Scan(&n.ID, &n.DomainID, &n.Type, &n.Content,
			pq.Array(&n.Patterns), &relationships, &n.Confidence, &n.Effectiveness,
			&n.AlertPriority, &n.AccessCount, &lastAccessed, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan memory note: %w", err)
		}
		if len(relationships) > 0 {
			if err := json.Unmarshal(relationships, &n.Relationships); err != nil {
				return nil, fmt.Errorf("postgres: corrupt relationships for note %s: %w", n.ID, err)
			}
		}
		if lastAccessed.Valid {
			n.LastAccessedAt = &lastAccessed.Time
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// UpsertTensor implements storage.ScoreSink. INSERT ... ON CONFLICT DO
// UPDATE is atomic and last-writer-wins, which is the only guarantee the
// engines rely on for concurrent recomputation of the same domain.
func (s *Store) UpsertTensor(ctx context.Context, record *types.TensorRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	subScores, err := json.Marshal(record.SubScores)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode sub-scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tensors (id, domain_id, tensor_type, vector, sub_scores,
		                     composite, label, decay_rate, last_accessed_at,
		                     created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (domain_id, tensor_type) DO UPDATE SET
			vector = EXCLUDED.vector,
			sub_scores = EXCLUDED.sub_scores,
			composite = EXCLUDED.composite,
			label = EXCLUDED.label,
			decay_rate = EXCLUDED.decay_rate,
			last_accessed_at = EXCLUDED.last_accessed_at,
			updated_at = EXCLUDED.updated_at
	`, record.ID, record.DomainID, string(record.TensorType),
		pq.Array(record.Vector), subScores, record.Composite, record.Label,
		record.DecayRate, record.LastAccessedAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert tensor: %w", err)
	}
	return nil
}

// GetTensor implements storage.ScoreSink.
func (s *Store) GetTensor(ctx context.Context, domainID string, tensorType types.TensorType) (*types.TensorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain_id, tensor_type, vector, sub_scores, composite,
		       label, decay_rate, last_accessed_at, created_at, updated_at
		FROM tensors
		WHERE domain_id = $1 AND tensor_type = $2
	`, domainID, string(tensorType))

	record, err := scanTensor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get tensor: %w", err)
	}
	return record, nil
}

// ListStaleTensors implements storage.ScoreSink.
func (s *Store) ListStaleTensors(ctx context.Context, olderThan time.Time) ([]types.TensorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, tensor_type, vector, sub_scores, composite,
		       label, decay_rate, last_accessed_at, created_at, updated_at
		FROM tensors
		WHERE tensor_type = $1 AND last_accessed_at < $2
	`, string(types.TensorMemory), olderThan)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list stale tensors: %w", err)
	}
	defer rows.Close()

	var records []types.TensorRecord
	for rows.Next() {
		record, err := scanTensor(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan stale tensor: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// UpdateTensorRecency implements storage.ScoreSink.
func (s *Store) UpdateTensorRecency(ctx context.Context, id string, recency, composite float64, accessedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tensors
		SET sub_scores = jsonb_set(sub_scores, '{recency}', to_jsonb($1::float)),
		    composite = $2,
		    last_accessed_at = $3,
		    updated_at = $3
		WHERE id = $4
	`, recency, composite, accessedAt, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to update tensor recency: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check update: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendSeriesPoint implements storage.ScoreSink.
func (s *Store) AppendSeriesPoint(ctx context.Context, point types.SeriesPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tensor_series (domain_id, tensor_type, value, observed_at)
		VALUES ($1, $2, $3, $4)
	`, point.DomainID, string(point.TensorType), point.Value, point.At)
	if err != nil {
		return fmt.Errorf("postgres: failed to append series point: %w", err)
	}
	return nil
}

// ListSeriesPoints implements storage.ScoreSink.
func (s *Store) ListSeriesPoints(ctx context.Context, domainID string, tensorType types.TensorType, since time.Time) ([]types.SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT domain_id, tensor_type, value, observed_at
		FROM tensor_series
		WHERE domain_id = $1 AND tensor_type = $2 AND observed_at >= $3
		ORDER BY observed_at ASC
	`, domainID, string(tensorType), since)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list series points: %w", err)
	}
	defer rows.Close()

	var points []types.SeriesPoint
	for rows.Next() {
		var p types.SeriesPoint
		var tt string
		if err := rows.Scan(&p.DomainID, &tt, &p.Value, &p.At); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan series point: %w", err)
		}
		p.TensorType = types.TensorType(tt)
		points = append(points, p)
	}
	return points, rows.Err()
}

// AppendAccessPattern implements storage.ScoreSink.
func (s *Store) AppendAccessPattern(ctx context.Context, domainID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_patterns (domain_id, accessed_at) VALUES ($1, $2)
	`, domainID, at)
	if err != nil {
		return fmt.Errorf("postgres: failed to append access pattern: %w", err)
	}
	return nil
}

// RecordAnomaly implements storage.ScoreSink.
func (s *Store) RecordAnomaly(ctx context.Context, anomaly *types.SentimentAnomaly) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sentiment_anomalies (id, domain_id, anomaly_type, severity, z_score, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, anomaly.ID, anomaly.DomainID, anomaly.AnomalyType, anomaly.Severity,
		anomaly.ZScore, anomaly.DetectedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to record anomaly: %w", err)
	}
	return nil
}

// AppendDriftResult implements storage.ScoreSink.
func (s *Store) AppendDriftResult(ctx context.Context, result *types.DriftResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_results (id, domain_id, drift_score, drift_type,
		                           drift_direction, concept_drift, data_drift,
		                           model_drift, temporal_drift, severity, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, result.ID, result.DomainID, result.DriftScore, string(result.DriftType),
		string(result.Direction), result.ConceptDrift, result.DataDrift,
		result.ModelDrift, result.TemporalDrift, string(result.Severity), result.DetectedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to append drift result: %w", err)
	}
	return nil
}

// ListDriftResults implements storage.ScoreSink.
func (s *Store) ListDriftResults(ctx context.Context, domainID string, limit int) ([]types.DriftResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, drift_score, drift_type, drift_direction,
		       concept_drift, data_drift, model_drift, temporal_drift,
		       severity, detected_at
		FROM drift_results
		WHERE domain_id = $1
		ORDER BY detected_at DESC
		LIMIT $2
	`, domainID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list drift results: %w", err)
	}
	defer rows.Close()

	var results []types.DriftResult
	for rows.Next() {
		var r types.DriftResult
		var driftType, direction, severity string
		if err := rows.Scan(&r.ID, &r.DomainID, &r.DriftScore, &driftType,
			&direction, &r.ConceptDrift, &r.DataDrift, &r.ModelDrift,
			&r.TemporalDrift, &severity, &r.DetectedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan drift result: %w", err)
		}
		r.DriftType = types.DriftType(driftType)
		r.Direction = types.DriftDirection(direction)
		r.Severity = types.Severity(severity)
		results = append(results, r)
	}
	return results, rows.Err()
}

// CreateAlert implements storage.ScoreSink.
func (s *Store) CreateAlert(ctx context.Context, alert *types.DriftAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_alerts (id, domain_id, alert_type, severity,
		                          description, recommendations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, alert.ID, alert.DomainID, alert.AlertType, string(alert.Severity),
		alert.Description, pq.Array(alert.Recommendations), alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create alert: %w", err)
	}
	return nil
}

// AcknowledgeAlert implements storage.ScoreSink.
func (s *Store) AcknowledgeAlert(ctx context.Context, id string) error {
	return s.stampAlert(ctx, id, "acknowledged_at")
}

// ResolveAlert implements storage.ScoreSink.
func (s *Store) ResolveAlert(ctx context.Context, id string) error {
	return s.stampAlert(ctx, id, "resolved_at")
}

// stampAlert sets the named timestamp column once; repeat calls keep the
// original value. column is always one of two compile-time constants.
func (s *Store) stampAlert(ctx context.Context, id, column string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE drift_alerts SET "+column+" = $1 WHERE id = $2 AND "+column+" IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("postgres: failed to stamp alert %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to check alert update: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM drift_alerts WHERE id = $1)", id).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: failed to check alert existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
	}
	return nil
}

// AppendConsensusScore implements storage.ScoreSink.
func (s *Store) AppendConsensusScore(ctx context.Context, score *types.ConsensusScore) error {
	dissensus, err := json.Marshal(score.DissensusPoints)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode dissensus points: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consensus_scores (id, domain_id, composite, agreement_level,
		                              model_agreement, temporal_consistency,
		                              cross_prompt_alignment, confidence_alignment,
		                              dissensus_points, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, score.ID, score.DomainID, score.Composite, string(score.AgreementLevel),
		score.ModelAgreement, score.TemporalConsistency, score.CrossPromptAlignment,
		score.ConfidenceAlignment, dissensus, score.ComputedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to append consensus score: %w", err)
	}
	return nil
}

// ListConsensusScores implements storage.ScoreSink.
func (s *Store) ListConsensusScores(ctx context.Context, domainID string, limit int) ([]types.ConsensusScore, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, composite, agreement_level, model_agreement,
		       temporal_consistency, cross_prompt_alignment,
		       confidence_alignment, dissensus_points, computed_at
		FROM consensus_scores
		WHERE domain_id = $1
		ORDER BY computed_at DESC
		LIMIT $2
	`, domainID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list consensus scores: %w", err)
	}
	defer rows.Close()

	var scores []types.ConsensusScore
	for rows.Next() {
		var c types.ConsensusScore
		var level string
		var dissensus []byte
		if err := rows.Scan(&c.ID, &c.DomainID, &c.Composite, &level,
			&c.ModelAgreement, &c.TemporalConsistency, &c.CrossPromptAlignment,
			&c.ConfidenceAlignment, &dissensus, &c.ComputedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan consensus score: %w", err)
		}
		c.AgreementLevel = types.AgreementLevel(level)
		if len(dissensus) > 0 {
			if err := json.Unmarshal(dissensus, &c.DissensusPoints); err != nil {
				return nil, fmt.Errorf("postgres: corrupt dissensus points for score %s: %w", c.ID, err)
			}
		}
		scores = append(scores, c)
	}
	return scores, rows.Err()
}

// UpsertModelAgreement implements storage.ScoreSink.
func (s *Store) UpsertModelAgreement(ctx context.Context, agreement *types.ModelAgreement) error {
	agreement.NormalizePair()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_agreement (domain_id, model_a, model_b, score,
		                             comparison_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain_id, model_a, model_b) DO UPDATE SET
			score = EXCLUDED.score,
			comparison_count = EXCLUDED.comparison_count,
			updated_at = EXCLUDED.updated_at
	`, agreement.DomainID, agreement.ModelA, agreement.ModelB, agreement.Score,
		agreement.ComparisonCount, agreement.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert model agreement: %w", err)
	}
	return nil
}

// CreateInsight implements storage.ScoreSink.
func (s *Store) CreateInsight(ctx context.Context, insight *types.ConsensusInsight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consensus_insights (id, domain_id, insight_type, impact,
		                                description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, insight.ID, insight.DomainID, insight.InsightType, insight.Impact,
		insight.Description, insight.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create insight: %w", err)
	}
	return nil
}

// StoreEmbedding writes a response embedding through pgvector. Used by the
// ingest side when backfilling embeddings; validated against the shared
// dimension.
func (s *Store) StoreEmbedding(ctx context.Context, responseID string, embedding []float64) error {
	if len(embedding) != s.dim {
		return fmt.Errorf("postgres: embedding dimension %d does not match configured %d: %w",
			len(embedding), s.dim, storage.ErrInvalidInput)
	}
	vec := make([]float32, len(embedding))
	for i, v := range embedding {
		vec[i] = float32(v)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE domain_responses SET embedding = $1 WHERE id = $2
	`, pgvector.NewVector(vec), responseID)
	if err != nil {
		return fmt.Errorf("postgres: failed to store embedding: %w", err)
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTensor.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTensor decodes one tensors row.
func scanTensor(row rowScanner) (*types.TensorRecord, error) {
	var r types.TensorRecord
	var tensorType string
	var subScores []byte
	if err := row.Scan(&r.ID, &r.DomainID, &tensorType, pq.Array(&r.Vector),
		&subScores, &r.Composite, &r.Label, &r.DecayRate, &r.LastAccessedAt,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.TensorType = types.TensorType(tensorType)
	if err := json.Unmarshal(subScores, &r.SubScores); err != nil {
		return nil, fmt.Errorf("corrupt sub-scores for tensor %s: %w", r.ID, err)
	}
	return &r, nil
}
