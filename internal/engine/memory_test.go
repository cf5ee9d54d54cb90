package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/modelmind/tensorcore/pkg/types"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func richNotes(domainID string, now time.Time) []types.MemoryNote {
	var notes []types.MemoryNote
	for week := 0; week < 12; week++ {
		at := now.AddDate(0, 0, -7*week)
		accessed := at
		notes = append(notes, types.MemoryNote{
			ID:             string(rune('a' + week)),
			DomainID:       domainID,
			Type:           "analysis",
			Content:        "steady growth opportunity in the segment",
			Confidence:     0.85,
			Effectiveness:  0.7,
			AlertPriority:  types.PriorityMedium,
			AccessCount:    12,
			LastAccessedAt: &accessed,
			CreatedAt:      at,
		})
	}
	notes[0].AlertPriority = types.PriorityHigh
	notes[1].Type = types.NoteTypeSynthesis
	return notes
}

func TestMemoryComputeEmptyDomain(t *testing.T) {
	store := newMemStore()
	eng := NewMemoryEngine(store, store, MemoryConfig{EmbeddingDim: 4})
	eng.now = fixedNow

	record, err := eng.Compute(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if record.Composite < 0 || record.Composite > 1 {
		t.Errorf("composite %f out of [0,1]", record.Composite)
	}
	if len(record.Vector) != 4 {
		t.Errorf("vector length %d, want 4", len(record.Vector))
	}
	for i, v := range record.Vector {
		if v != 0 {
			t.Errorf("vector[%d] = %f, want all-zero fallback", i, v)
		}
	}
	if _, ok := store.tensors[tensorKey("dom-1", types.TensorMemory)]; !ok {
		t.Error("tensor record was not upserted")
	}
}

func TestMemoryComputeActiveDomainScoresHigher(t *testing.T) {
	store := newMemStore()
	store.notes["active"] = richNotes("active", testNow)
	store.responses["active"] = []types.Response{
		{ID: "r1", DomainID: "active", Model: "gpt", Confidence: 0.9,
			Embedding: []float64{1, 0, 0, 0}, CreatedAt: testNow.AddDate(0, 0, -1)},
	}

	eng := NewMemoryEngine(store, store, MemoryConfig{EmbeddingDim: 4})
	eng.now = fixedNow

	active, err := eng.Compute(context.Background(), "active")
	if err != nil {
		t.Fatalf("Compute(active): %v", err)
	}
	empty, err := eng.Compute(context.Background(), "empty")
	if err != nil {
		t.Fatalf("Compute(empty): %v", err)
	}

	if active.Composite <= empty.Composite {
		t.Errorf("active composite %f should exceed empty composite %f",
			active.Composite, empty.Composite)
	}
	for key, score := range active.SubScores {
		if score < 0 || score > 1 {
			t.Errorf("sub-score %s = %f out of [0,1]", key, score)
		}
	}
	if types.Magnitude(active.Vector) == 0 {
		t.Error("active domain with embeddings should have a non-zero vector")
	}
}

func TestMemoryComputeIsDeterministic(t *testing.T) {
	store := newMemStore()
	store.notes["dom-1"] = richNotes("dom-1", testNow)

	eng := NewMemoryEngine(store, store, MemoryConfig{EmbeddingDim: 4})
	eng.now = fixedNow

	first, err := eng.Compute(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("first Compute: %v", err)
	}
	second, err := eng.Compute(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("second Compute: %v", err)
	}
	if math.Abs(first.Composite-second.Composite) > 1e-12 {
		t.Errorf("recompute changed composite: %f vs %f", first.Composite, second.Composite)
	}
}

func TestTrackAccessNudgesRecency(t *testing.T) {
	store := newMemStore()
	store.notes["dom-1"] = richNotes("dom-1", testNow)

	eng := NewMemoryEngine(store, store, MemoryConfig{EmbeddingDim: 4})
	eng.now = fixedNow

	record, err := eng.Compute(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	before := record.SubScores[types.ScoreRecency]

	if err := eng.TrackAccess(context.Background(), "dom-1"); err != nil {
		t.Fatalf("TrackAccess: %v", err)
	}

	after := store.tensors[tensorKey("dom-1", types.TensorMemory)]
	got := after.SubScores[types.ScoreRecency]
	want := math.Min(before*1.1, 1)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("recency after access = %f, want %f", got, want)
	}
	if len(store.accesses) != 1 {
		t.Errorf("access patterns recorded = %d, want 1", len(store.accesses))
	}
}

func TestTrackAccessCapsRecencyAtOne(t *testing.T) {
	store := newMemStore()
	store.tensors[tensorKey("dom-1", types.TensorMemory)] = &types.TensorRecord{
		ID:         "t1",
		DomainID:   "dom-1",
		TensorType: types.TensorMemory,
		SubScores: map[string]float64{
			types.ScoreRecency:      0.99,
			types.ScoreFrequency:    0.5,
			types.ScoreSignificance: 0.5,
			types.ScorePersistence:  0.5,
		},
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: testNow,
	}

	eng := NewMemoryEngine(store, store, MemoryConfig{})
	eng.now = fixedNow

	if err := eng.TrackAccess(context.Background(), "dom-1"); err != nil {
		t.Fatalf("TrackAccess: %v", err)
	}
	got := store.tensors[tensorKey("dom-1", types.TensorMemory)].SubScores[types.ScoreRecency]
	if got != 1 {
		t.Errorf("recency = %f, want capped at 1", got)
	}
}

func TestMemoryCompositeBounds(t *testing.T) {
	for _, v := range []float64{0, 0.25, 0.5, 0.75, 1} {
		got := memoryComposite(v, v, v, v)
		if got < 0 || got > 1 {
			t.Errorf("memoryComposite(%f,...) = %f out of [0,1]", v, got)
		}
	}
	if memoryComposite(1, 1, 1, 1) <= memoryComposite(0, 0, 0, 0) {
		t.Error("composite should increase with its components")
	}
}

func TestDecaySweepReducesStaleRecency(t *testing.T) {
	store := newMemStore()
	store.tensors[tensorKey("stale", types.TensorMemory)] = &types.TensorRecord{
		ID:         "t-stale",
		DomainID:   "stale",
		TensorType: types.TensorMemory,
		SubScores: map[string]float64{
			types.ScoreRecency:      0.8,
			types.ScoreFrequency:    0.5,
			types.ScoreSignificance: 0.5,
			types.ScorePersistence:  0.5,
		},
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: testNow.Add(-48 * time.Hour),
	}
	store.tensors[tensorKey("fresh", types.TensorMemory)] = &types.TensorRecord{
		ID:         "t-fresh",
		DomainID:   "fresh",
		TensorType: types.TensorMemory,
		SubScores: map[string]float64{
			types.ScoreRecency:      0.8,
			types.ScoreFrequency:    0.5,
			types.ScoreSignificance: 0.5,
			types.ScorePersistence:  0.5,
		},
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: testNow.Add(-time.Hour),
	}

	sweeper := NewDecaySweeper(store, 24*time.Hour)
	sweeper.now = fixedNow

	updated, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if updated != 1 {
		t.Errorf("updated = %d, want 1", updated)
	}

	stale := store.tensors[tensorKey("stale", types.TensorMemory)]
	want := 0.8 * types.DefaultDecayRate
	if math.Abs(stale.SubScores[types.ScoreRecency]-want) > 1e-9 {
		t.Errorf("stale recency = %f, want %f", stale.SubScores[types.ScoreRecency], want)
	}

	fresh := store.tensors[tensorKey("fresh", types.TensorMemory)]
	if fresh.SubScores[types.ScoreRecency] != 0.8 {
		t.Errorf("fresh recency = %f, want untouched 0.8", fresh.SubScores[types.ScoreRecency])
	}
}
