// Package sqlite implements the tensorcore storage contracts on SQLite via
// the CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

// Store implements storage.Store using SQLite. Structured columns (vectors,
// sub-scores, patterns, dissensus points) are serialized as JSON text.
type Store struct {
	db *sql.DB
}

// New opens a SQLite database, configures WAL mode and applies the embedded
// schema. SQLite only supports one concurrent writer, so the pool is pinned
// to a single connection; WAL mode lets readers proceed alongside it.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying connection for the migration manager.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
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
		return nil, fmt.Errorf("sqlite: failed to list domains: %w", err)
	}
	defer rows.Close()

	var domains []types.Domain
	for rows.Next() {
		var d types.Domain
		if err := rows.Scan(&d.ID, &d.Name, &d.Cohort, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// ListResponses implements storage.ResponseStore.
func (s *Store) ListResponses(ctx context.Context, domainID string, since time.Time) ([]types.Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, model, prompt_type, content, fingerprint,
		       confidence, embedding, response_time_ms, created_at
		FROM domain_responses
		WHERE domain_id = ? AND created_at >= ?
		ORDER BY created_at ASC
	`, domainID, since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []types.Response
	for rows.Next() {
		var r types.Response
		var embedding sql.NullString
		if err := rows.Scan(&r.ID, &r.DomainID, &r.Model, &r.PromptType, &r.Content,
			&r.Fingerprint, &r.Confidence, &embedding, &r.ResponseTimeMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan response: %w", err)
		}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &r.Embedding); err != nil {
				return nil, fmt.Errorf("sqlite: corrupt embedding for response %s: %w", r.ID, err)
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
		WHERE domain_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, domainID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memory notes: %w", err)
	}
	defer rows.Close()

	var notes []types.MemoryNote
	for rows.Next() {
		var n types.MemoryNote
		var patterns, relationships sql.NullString
		var lastAccessed sql.NullTime
		if err := rows.Scan(&n.ID, &n.DomainID, &n.Type, &n.Content, &patterns,
			&relationships, &n.Confidence, &n.Effectiveness, &n.AlertPriority,
			&n.AccessCount, &lastAccessed, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory note: %w", err)
		}
		if patterns.Valid && patterns.String != "" {
			if err := json.Unmarshal([]byte(patterns.String), &n.Patterns); err != nil {
				return nil, fmt.Errorf("sqlite: corrupt patterns for note %s: %w", n.ID, err)
			}
		}
		if relationships.Valid && relationships.String != "" {
			if err := json.Unmarshal([]byte(relationships.String), &n.Relationships); err != nil {
				return nil, fmt.Errorf("sqlite: corrupt relationships for note %s: %w", n.ID, err)
			}
		}
		if lastAccessed.Valid {
			n.LastAccessedAt = &lastAccessed.Time
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// UpsertTensor implements storage.ScoreSink. The upsert is a single
// statement, so it is atomic and last-writer-wins at the storage layer.
func (s *Store) UpsertTensor(ctx context.Context, record *types.TensorRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	vector, err := json.Marshal(record.Vector)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode vector: %w", err)
	}
	subScores, err := json.Marshal(record.SubScores)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode sub-scores: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tensors (id, domain_id, tensor_type, vector, sub_scores,
		                     composite, label, decay_rate, last_accessed_at,
		                     created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain_id, tensor_type) DO UPDATE SET
			vector = excluded.vector,
			sub_scores = excluded.sub_scores,
			composite = excluded.composite,
			label = excluded.label,
			decay_rate = excluded.decay_rate,
			last_accessed_at = excluded.last_accessed_at,
			updated_at = excluded.updated_at
	`, record.ID, record.DomainID, string(record.TensorType), string(vector),
		string(subScores), record.Composite, record.Label, record.DecayRate,
		record.LastAccessedAt, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert tensor: %w", err)
	}
	return nil
}

// GetTensor implements storage.ScoreSink.
func (s *Store) GetTensor(ctx context.Context, domainID string, tensorType types.TensorType) (*types.TensorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain_id, tensor_type, vector, sub_scores, composite,
		       label, decay_rate, last_accessed_at, created_at, updated_at
		FROM tensors
		WHERE domain_id = ? AND tensor_type = ?
	`, domainID, string(tensorType))

	record, err := scanTensor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get tensor: %w", err)
	}
	return record, nil
}

// ListStaleTensors implements storage.ScoreSink.
func (s *Store) ListStaleTensors(ctx context.Context, olderThan time.Time) ([]types.TensorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, tensor_type, vector, sub_scores, composite,
		       label, decay_rate, last_accessed_at, created_at, updated_at
		FROM tensors
		WHERE tensor_type = ? AND last_accessed_at < ?
	`, string(types.TensorMemory), olderThan)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list stale tensors: %w", err)
	}
	defer rows.Close()

	var records []types.TensorRecord
	for rows.Next() {
		record, err := scanTensor(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan stale tensor: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// UpdateTensorRecency implements storage.ScoreSink.
func (s *Store) UpdateTensorRecency(ctx context.Context, id string, recency, composite float64, accessedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tensors
		SET sub_scores = json_set(sub_scores, '$.recency', ?),
		    composite = ?,
		    last_accessed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`, recency, composite, accessedAt, accessedAt, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update tensor recency: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check update: %w", err)
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
		VALUES (?, ?, ?, ?)
	`, point.DomainID, string(point.TensorType), point.Value, point.At)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append series point: %w", err)
	}
	return nil
}

// ListSeriesPoints implements storage.ScoreSink.
func (s *Store) ListSeriesPoints(ctx context.Context, domainID string, tensorType types.TensorType, since time.Time) ([]types.SeriesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT domain_id, tensor_type, value, observed_at
		FROM tensor_series
		WHERE domain_id = ? AND tensor_type = ? AND observed_at >= ?
		ORDER BY observed_at ASC
	`, domainID, string(tensorType), since)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list series points: %w", err)
	}
	defer rows.Close()

	var points []types.SeriesPoint
	for rows.Next() {
		var p types.SeriesPoint
		var tt string
		if err := rows.Scan(&p.DomainID, &tt, &p.Value, &p.At); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan series point: %w", err)
		}
		p.TensorType = types.TensorType(tt)
		points = append(points, p)
	}
	return points, rows.Err()
}

// AppendAccessPattern implements storage.ScoreSink.
func (s *Store) AppendAccessPattern(ctx context.Context, domainID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_patterns (domain_id, accessed_at) VALUES (?, ?)
	`, domainID, at)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append access pattern: %w", err)
	}
	return nil
}

// RecordAnomaly implements storage.ScoreSink.
func (s *Store) RecordAnomaly(ctx context.Context, anomaly *types.SentimentAnomaly) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sentiment_anomalies (id, domain_id, anomaly_type, severity, z_score, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, anomaly.ID, anomaly.DomainID, anomaly.AnomalyType, anomaly.Severity,
		anomaly.ZScore, anomaly.DetectedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to record anomaly: %w", err)
	}
	return nil
}

// AppendDriftResult implements storage.ScoreSink.
func (s *Store) AppendDriftResult(ctx context.Context, result *types.DriftResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_results (id, domain_id, drift_score, drift_type,
		                           drift_direction, concept_drift, data_drift,
		                           model_drift, temporal_drift, severity, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.ID, result.DomainID, result.DriftScore, string(result.DriftType),
		string(result.Direction), result.ConceptDrift, result.DataDrift,
		result.ModelDrift, result.TemporalDrift, string(result.Severity), result.DetectedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append drift result: %w", err)
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
		WHERE domain_id = ?
		ORDER BY detected_at DESC
		LIMIT ?
	`, domainID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list drift results: %w", err)
	}
	defer rows.Close()

	var results []types.DriftResult
	for rows.Next() {
		var r types.DriftResult
		var driftType, direction, severity string
		if err := rows.Scan(&r.ID, &r.DomainID, &r.DriftScore, &driftType,
			&direction, &r.ConceptDrift, &r.DataDrift, &r.ModelDrift,
			&r.TemporalDrift, &severity, &r.DetectedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan drift result: %w", err)
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
	recommendations, err := json.Marshal(alert.Recommendations)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode recommendations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drift_alerts (id, domain_id, alert_type, severity,
		                          description, recommendations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.DomainID, alert.AlertType, string(alert.Severity),
		alert.Description, string(recommendations), alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create alert: %w", err)
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
		"UPDATE drift_alerts SET "+column+" = ? WHERE id = ? AND "+column+" IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to stamp alert %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check alert update: %w", err)
	}
	if affected == 0 {
		// Either missing or already stamped; distinguish for the caller.
		var exists int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM drift_alerts WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: failed to check alert existence: %w", err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
	}
	return nil
}

// AppendConsensusScore implements storage.ScoreSink.
func (s *Store) AppendConsensusScore(ctx context.Context, score *types.ConsensusScore) error {
	dissensus, err := json.Marshal(score.DissensusPoints)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode dissensus points: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consensus_scores (id, domain_id, composite, agreement_level,
		                              model_agreement, temporal_consistency,
		                              cross_prompt_alignment, confidence_alignment,
		                              dissensus_points, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, score.ID, score.DomainID, score.Composite, string(score.AgreementLevel),
		score.ModelAgreement, score.TemporalConsistency, score.CrossPromptAlignment,
		score.ConfidenceAlignment, string(dissensus), score.ComputedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to append consensus score: %w", err)
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
		WHERE domain_id = ?
		ORDER BY computed_at DESC
		LIMIT ?
	`, domainID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list consensus scores: %w", err)
	}
	defer rows.Close()

	var scores []types.ConsensusScore
	for rows.Next() {
		var c types.ConsensusScore
		var level string
		var dissensus sql.NullString
		if err := rows.Scan(&c.ID, &c.DomainID, &c.Composite, &level,
			&c.ModelAgreement, &c.TemporalConsistency, &c.CrossPromptAlignment,
			&c.ConfidenceAlignment, &dissensus, &c.ComputedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan consensus score: %w", err)
		}
		c.AgreementLevel = types.AgreementLevel(level)
		if dissensus.Valid && dissensus.String != "" {
			if err := json.Unmarshal([]byte(dissensus.String), &c.DissensusPoints); err != nil {
				return nil, fmt.Errorf("sqlite: corrupt dissensus points for score %s: %w", c.ID, err)
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain_id, model_a, model_b) DO UPDATE SET
			score = excluded.score,
			comparison_count = excluded.comparison_count,
			updated_at = excluded.updated_at
	`, agreement.DomainID, agreement.ModelA, agreement.ModelB, agreement.Score,
		agreement.ComparisonCount, agreement.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert model agreement: %w", err)
	}
	return nil
}

// CreateInsight implements storage.ScoreSink.
func (s *Store) CreateInsight(ctx context.Context, insight *types.ConsensusInsight) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consensus_insights (id, domain_id, insight_type, impact,
		                                description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, insight.ID, insight.DomainID, insight.InsightType, insight.Impact,
		insight.Description, insight.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create insight: %w", err)
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
	var tensorType, vector, subScores string
	if err := row.Scan(&r.ID, &r.DomainID, &tensorType, &vector, &subScores,
		&r.Composite, &r.Label, &r.DecayRate, &r.LastAccessedAt,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.TensorType = types.TensorType(tensorType)
	if err := json.Unmarshal([]byte(vector), &r.Vector); err != nil {
		return nil, fmt.Errorf("corrupt vector for tensor %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(subScores), &r.SubScores); err != nil {
		return nil, fmt.Errorf("corrupt sub-scores for tensor %s: %w", r.ID, err)
	}
	return &r, nil
}
