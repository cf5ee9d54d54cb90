package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedDomain(t *testing.T, store *Store, id, name string) {
	t.Helper()
	_, err := store.DB().Exec(
		`INSERT INTO domains (id, name, cohort) VALUES (?, ?, ?)`,
		id, name, "test-cohort")
	require.NoError(t, err)
}

func TestResponseRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDomain(t, store, "dom-1", "Example")

	created := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	_, err := store.DB().Exec(`
		INSERT INTO domain_responses (id, domain_id, model, prompt_type, content,
			fingerprint, confidence, embedding, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"resp-1", "dom-1", "gpt", "overview", "strong growth",
		"fp-1", 0.9, `[0.1,0.2,0.3]`, 120, created)
	require.NoError(t, err)

	responses, err := store.ListResponses(ctx, "dom-1", created.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, responses, 1)

	r := responses[0]
	assert.Equal(t, "gpt", r.Model)
	assert.Equal(t, "overview", r.PromptType)
	assert.InDelta(t, 0.9, r.Confidence, 1e-9)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, r.Embedding)

	// The since filter excludes older responses.
	responses, err = store.ListResponses(ctx, "dom-1", created.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestMemoryNoteRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDomain(t, store, "dom-1", "Example")

	_, err := store.DB().Exec(`
		INSERT INTO memory_notes (id, domain_id, note_type, content, patterns,
			relationships, confidence, effectiveness, alert_priority, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"note-1", "dom-1", "synthesis", "pattern summary",
		`["market_shift","pricing"]`, `{"competitor":"acme"}`,
		0.8, 0.6, types.PriorityHigh, 3)
	require.NoError(t, err)

	notes, err := store.ListMemoryNotes(ctx, "dom-1", 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	n := notes[0]
	assert.Equal(t, "synthesis", n.Type)
	assert.Equal(t, []string{"market_shift", "pricing"}, n.Patterns)
	assert.Equal(t, map[string]string{"competitor": "acme"}, n.Relationships)
	assert.True(t, n.HighPriority())
	assert.Nil(t, n.LastAccessedAt)
}

func TestUpsertTensorOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDomain(t, store, "dom-1", "Example")

	now := time.Now().UTC()
	first := &types.TensorRecord{
		ID:             "tensor-1",
		DomainID:       "dom-1",
		TensorType:     types.TensorMemory,
		Vector:         []float64{0.1, 0.2},
		SubScores:      map[string]float64{types.ScoreRecency: 0.4},
		Composite:      0.4,
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: now,
	}
	require.NoError(t, store.UpsertTensor(ctx, first))

	second := &types.TensorRecord{
		ID:             "tensor-2",
		DomainID:       "dom-1",
		TensorType:     types.TensorMemory,
		Vector:         []float64{0.5, 0.6},
		SubScores:      map[string]float64{types.ScoreRecency: 0.9},
		Composite:      0.9,
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: now.Add(time.Minute),
	}
	require.NoError(t, store.UpsertTensor(ctx, second))

	got, err := store.GetTensor(ctx, "dom-1", types.TensorMemory)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Composite, 1e-9)
	assert.Equal(t, []float64{0.5, 0.6}, got.Vector)

	// Still exactly one current record for the (domain, type) pair.
	var count int
	require.NoError(t, store.DB().QueryRow(
		`SELECT COUNT(*) FROM tensors WHERE domain_id = ? AND tensor_type = ?`,
		"dom-1", "memory").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUpsertTensorRejectsOutOfRangeScores(t *testing.T) {
	store := newTestStore(t)
	record := &types.TensorRecord{
		ID:             "tensor-1",
		DomainID:       "dom-1",
		TensorType:     types.TensorMemory,
		SubScores:      map[string]float64{types.ScoreRecency: 1.4},
		Composite:      0.5,
		LastAccessedAt: time.Now(),
	}
	err := store.UpsertTensor(context.Background(), record)
	assert.ErrorIs(t, err, types.ErrInvalidScore)
}

func TestGetTensorNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetTensor(context.Background(), "missing", types.TensorMemory)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateTensorRecency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedDomain(t, store, "dom-1", "Example")

	stale := time.Now().UTC().Add(-48 * time.Hour)
	record := &types.TensorRecord{
		ID:         "tensor-1",
		DomainID:   "dom-1",
		TensorType: types.TensorMemory,
		Vector:     []float64{0},
		SubScores: map[string]float64{
			types.ScoreRecency:   0.8,
			types.ScoreFrequency: 0.5,
		},
		Composite:      0.6,
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: stale,
	}
	require.NoError(t, store.UpsertTensor(ctx, record))

	records, err := store.ListStaleTensors(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)

	now := time.Now().UTC()
	require.NoError(t, store.UpdateTensorRecency(ctx, "tensor-1", 0.76, 0.55, now))

	got, err := store.GetTensor(ctx, "dom-1", types.TensorMemory)
	require.NoError(t, err)
	assert.InDelta(t, 0.76, got.SubScores[types.ScoreRecency], 1e-9)
	assert.InDelta(t, 0.5, got.SubScores[types.ScoreFrequency], 1e-9)
	assert.InDelta(t, 0.55, got.Composite, 1e-9)

	// The freshly stamped tensor is no longer stale.
	records, err = store.ListStaleTensors(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t,
		store.UpdateTensorRecency(ctx, "missing", 0.5, 0.5, now),
		storage.ErrNotFound)
}

func TestSeriesPoints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendSeriesPoint(ctx, types.SeriesPoint{
			DomainID:   "dom-1",
			TensorType: types.TensorSentiment,
			Value:      0.5 + float64(i)*0.1,
			At:         base.AddDate(0, 0, i),
		}))
	}

	points, err := store.ListSeriesPoints(ctx, "dom-1", types.TensorSentiment, base.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].At.Before(points[1].At), "points must be oldest first")
}

func TestDriftResultsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendDriftResult(ctx, &types.DriftResult{
			ID:         string(rune('a' + i)),
			DomainID:   "dom-1",
			DriftScore: 0.2 + float64(i)*0.1,
			DriftType:  types.DriftGradual,
			Direction:  types.DirectionNeutral,
			Severity:   types.SeverityLow,
			DetectedAt: base.AddDate(0, 0, i),
		}))
	}

	results, err := store.ListDriftResults(ctx, "dom-1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, 0.4, results[0].DriftScore, 1e-9)
	assert.InDelta(t, 0.3, results[1].DriftScore, 1e-9)
}

func TestAlertTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alert := &types.DriftAlert{
		ID:              "alert-1",
		DomainID:        "dom-1",
		AlertType:       types.AlertDriftDetected,
		Severity:        types.SeverityCritical,
		Description:     "drift detected",
		Recommendations: []string{"URGENT: review domain immediately"},
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, store.CreateAlert(ctx, alert))

	require.NoError(t, store.AcknowledgeAlert(ctx, "alert-1"))
	var firstAck time.Time
	require.NoError(t, store.DB().QueryRow(
		`SELECT acknowledged_at FROM drift_alerts WHERE id = ?`, "alert-1").Scan(&firstAck))
	assert.False(t, firstAck.IsZero())

	// A second acknowledge is a no-op that keeps the original timestamp.
	require.NoError(t, store.AcknowledgeAlert(ctx, "alert-1"))
	var secondAck time.Time
	require.NoError(t, store.DB().QueryRow(
		`SELECT acknowledged_at FROM drift_alerts WHERE id = ?`, "alert-1").Scan(&secondAck))
	assert.True(t, firstAck.Equal(secondAck))

	require.NoError(t, store.ResolveAlert(ctx, "alert-1"))
	var resolved time.Time
	require.NoError(t, store.DB().QueryRow(
		`SELECT resolved_at FROM drift_alerts WHERE id = ?`, "alert-1").Scan(&resolved))
	assert.False(t, resolved.IsZero())

	assert.ErrorIs(t, store.AcknowledgeAlert(ctx, "missing"), storage.ErrNotFound)
	assert.ErrorIs(t, store.ResolveAlert(ctx, "missing"), storage.ErrNotFound)
}

func TestConsensusScoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	score := &types.ConsensusScore{
		ID:                   "score-1",
		DomainID:             "dom-1",
		Composite:            0.72,
		AgreementLevel:       types.AgreementStrong,
		ModelAgreement:       0.8,
		TemporalConsistency:  0.7,
		CrossPromptAlignment: 0.6,
		ConfidenceAlignment:  0.9,
		DissensusPoints: []types.DissensusPoint{
			{Topic: "growth", PromptType: "overview", Divergence: 0.5, Models: []string{"claude"}},
		},
		ComputedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AppendConsensusScore(ctx, score))

	scores, err := store.ListConsensusScores(ctx, "dom-1", 5)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, types.AgreementStrong, scores[0].AgreementLevel)
	require.Len(t, scores[0].DissensusPoints, 1)
	assert.Equal(t, "growth", scores[0].DissensusPoints[0].Topic)
}

func TestModelAgreementUpsertLatestWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &types.ModelAgreement{
		DomainID: "dom-1", ModelA: "gpt", ModelB: "claude",
		Score: 0.6, ComparisonCount: 2, UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertModelAgreement(ctx, first))

	// Reversed pair order maps onto the same row.
	second := &types.ModelAgreement{
		DomainID: "dom-1", ModelA: "claude", ModelB: "gpt",
		Score: 0.9, ComparisonCount: 4, UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.UpsertModelAgreement(ctx, second))

	var score float64
	var count int
	require.NoError(t, store.DB().QueryRow(
		`SELECT score, comparison_count FROM model_agreement
		 WHERE domain_id = ? AND model_a = ? AND model_b = ?`,
		"dom-1", "claude", "gpt").Scan(&score, &count))
	assert.InDelta(t, 0.9, score, 1e-9)
	assert.Equal(t, 4, count)

	var rows int
	require.NoError(t, store.DB().QueryRow(
		`SELECT COUNT(*) FROM model_agreement WHERE domain_id = ?`, "dom-1").Scan(&rows))
	assert.Equal(t, 1, rows)
}
