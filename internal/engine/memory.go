package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

// MemoryConfig configures the memory tensor engine.
type MemoryConfig struct {
	// LookbackDays is the response window, default 90.
	LookbackDays int

	// EmbeddingDim is the system-wide embedding dimension.
	EmbeddingDim int

	// DecayRate is stored on the tensor record for the decay sweep.
	DecayRate float64

	// NoteLimit caps how many memory notes are pulled per computation.
	NoteLimit int
}

// Normalize fills zero fields with defaults.
func (c *MemoryConfig) Normalize() {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 90
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = 768
	}
	if c.DecayRate <= 0 {
		c.DecayRate = types.DefaultDecayRate
	}
	if c.NoteLimit <= 0 {
		c.NoteLimit = 500
	}
}

// MemoryEngine scores how recently, frequently, significantly and
// persistently a domain appears in the corpus.
type MemoryEngine struct {
	store storage.ResponseStore
	sink  storage.ScoreSink
	cfg   MemoryConfig
	now   func() time.Time
}

// NewMemoryEngine creates a memory tensor engine over the given store and
// sink. The engine never performs DDL; schema management happens at process
// start.
func NewMemoryEngine(store storage.ResponseStore, sink storage.ScoreSink, cfg MemoryConfig) *MemoryEngine {
	cfg.Normalize()
	return &MemoryEngine{store: store, sink: sink, cfg: cfg, now: time.Now}
}

// Compute pulls the domain's notes and responses, scores the four memory
// components, upserts the current memory tensor record and appends one
// series observation. A domain with no history produces a well-formed
// low-score record, not an error.
func (e *MemoryEngine) Compute(ctx context.Context, domainID string) (*types.TensorRecord, error) {
	now := e.now()

	notes, err := e.store.ListMemoryNotes(ctx, domainID, e.cfg.NoteLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: memory: list notes: %w", err)
	}
	since := now.AddDate(0, 0, -e.cfg.LookbackDays)
	responses, err := e.store.ListResponses(ctx, domainID, since)
	if err != nil {
		return nil, fmt.Errorf("engine: memory: list responses: %w", err)
	}

	recency := recencyScore(notes, now)
	frequency := frequencyScore(notes, now)
	significance := significanceScore(notes)
	persistence := persistenceScore(notes, now)
	composite := memoryComposite(recency, frequency, significance, persistence)

	record := &types.TensorRecord{
		ID:         uuid.NewString(),
		DomainID:   domainID,
		TensorType: types.TensorMemory,
		Vector:     memoryVector(responses, notes, e.cfg.EmbeddingDim, recency, frequency, significance, persistence),
		SubScores: map[string]float64{
			types.ScoreRecency:      recency,
			types.ScoreFrequency:    frequency,
			types.ScoreSignificance: significance,
			types.ScorePersistence:  persistence,
		},
		Composite:      composite,
		DecayRate:      e.cfg.DecayRate,
		LastAccessedAt: now,
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("engine: memory: %w", err)
	}
	if err := e.sink.UpsertTensor(ctx, record); err != nil {
		return nil, fmt.Errorf("engine: memory: upsert tensor: %w", err)
	}
	point := types.SeriesPoint{
		DomainID:   domainID,
		TensorType: types.TensorMemory,
		Value:      composite,
		At:         now,
	}
	if err := e.sink.AppendSeriesPoint(ctx, point); err != nil {
		return nil, fmt.Errorf("engine: memory: append series: %w", err)
	}
	return record, nil
}

// TrackAccess records one read-through access of the domain's memory
// tensor: it nudges recency upward by 10% (capped at 1.0), recomputes the
// composite from the stored sub-scores and appends an access-pattern
// record. This models read-through reinforcement.
func (e *MemoryEngine) TrackAccess(ctx context.Context, domainID string) error {
	record, err := e.sink.GetTensor(ctx, domainID, types.TensorMemory)
	if err != nil {
		return fmt.Errorf("engine: memory: track access: %w", err)
	}

	now := e.now()
	recency := clamp01(record.SubScores[types.ScoreRecency] * 1.1)
	composite := memoryComposite(
		recency,
		record.SubScores[types.ScoreFrequency],
		record.SubScores[types.ScoreSignificance],
		record.SubScores[types.ScorePersistence],
	)
	if err := e.sink.UpdateTensorRecency(ctx, record.ID, recency, composite, now); err != nil {
		return fmt.Errorf("engine: memory: update recency: %w", err)
	}
	if err := e.sink.AppendAccessPattern(ctx, domainID, now); err != nil {
		return fmt.Errorf("engine: memory: append access pattern: %w", err)
	}
	return nil
}

// memoryComposite combines the four components with their exponents and
// weights, then squashes through a logistic centered at 0.5 with steepness
// 4 to sharpen separation near the middle of the range.
func memoryComposite(recency, frequency, significance, persistence float64) float64 {
	raw := 0.25*math.Pow(recency, 1.2) +
		0.25*math.Pow(frequency, 1.1) +
		0.3*math.Pow(significance, 1.3) +
		0.2*math.Pow(persistence, 1.15)
	return clamp01(logistic(raw, 0.5, 4))
}

// recencyScore combines the exponential age decay of the newest note
// (weekly half-life) 60/40 with an activity score built from 24h/7d/30d
// note counts normalized by the 30-day count.
func recencyScore(notes []types.MemoryNote, now time.Time) float64 {
	if len(notes) == 0 {
		return 0
	}

	newest := notes[0].CreatedAt
	for _, n := range notes {
		if n.CreatedAt.After(newest) {
			newest = n.CreatedAt
		}
	}
	ageDays := now.Sub(newest).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Pow(0.5, ageDays/7)

	var c24, c7, c30 float64
	for _, n := range notes {
		age := now.Sub(n.CreatedAt)
		if age < 0 || age > 30*24*time.Hour {
			continue
		}
		c30++
		if age <= 7*24*time.Hour {
			c7++
		}
		if age <= 24*time.Hour {
			c24++
		}
	}
	var activity float64
	if c30 > 0 {
		activity = (c24/c30 + c7/c30 + math.Min(c30/30, 1)) / 3
	}

	return clamp01(0.6*decay + 0.4*activity)
}

// frequencyScore blends access-count density (capped at 100 accesses),
// temporal spread (distinct active days over the last 90, capped at 30) and
// access-timing consistency (inverse variance of access timestamps),
// weighted 40/40/20.
func frequencyScore(notes []types.MemoryNote, now time.Time) float64 {
	if len(notes) == 0 {
		return 0
	}

	var totalAccess float64
	activeDays := make(map[string]struct{})
	var offsets []float64

	for _, n := range notes {
		totalAccess += float64(n.AccessCount)

		at := n.CreatedAt
		if n.LastAccessedAt != nil {
			at = *n.LastAccessedAt
		}
		ageDays := now.Sub(at).Hours() / 24
		if ageDays >= 0 && ageDays <= 90 {
			activeDays[at.Format("2006-01-02")] = struct{}{}
			offsets = append(offsets, ageDays)
		}
	}

	density := math.Min(totalAccess/100, 1)
	spread := math.Min(float64(len(activeDays))/30, 1)
	consistency := inverseVariance(offsets)

	return clamp01(0.4*density + 0.4*spread + 0.2*consistency)
}

// significanceScore blends note confidence (mean and max), high/critical
// priority count (capped at 10), synthesis note count (capped at 5) and
// mean effectiveness, weighted 30/30/20/20.
func significanceScore(notes []types.MemoryNote) float64 {
	if len(notes) == 0 {
		return 0
	}

	var confs, effs []float64
	var high, synthesis float64
	for _, n := range notes {
		confs = append(confs, n.Confidence)
		effs = append(effs, n.Effectiveness)
		if n.HighPriority() {
			high++
		}
		if n.Type == types.NoteTypeSynthesis {
			synthesis++
		}
	}

	maxConf := confs[0]
	for _, c := range confs {
		if c > maxConf {
			maxConf = c
		}
	}
	confTerm := (mean(confs) + maxConf) / 2

	return clamp01(0.3*confTerm +
		0.3*math.Min(high/10, 1) +
		0.2*math.Min(synthesis/5, 1) +
		0.2*mean(effs))
}

// persistenceScore blends continuity (fraction of the last 12 weeks with at
// least one note), inverse-variance stability of weekly note counts, and
// mean confidence, weighted 40/30/30.
func persistenceScore(notes []types.MemoryNote, now time.Time) float64 {
	if len(notes) == 0 {
		return 0
	}

	const weeks = 12
	counts := make([]float64, weeks)
	var confs []float64
	for _, n := range notes {
		confs = append(confs, n.Confidence)
		age := now.Sub(n.CreatedAt)
		if age < 0 {
			continue
		}
		week := int(age.Hours() / (7 * 24))
		if week < weeks {
			counts[week]++
		}
	}

	var active float64
	for _, c := range counts {
		if c > 0 {
			active++
		}
	}
	continuity := active / weeks
	stability := inverseVariance(counts)
	quality := mean(confs)

	return clamp01(0.4*continuity + 0.3*stability + 0.3*quality)
}

// memoryVector aggregates response embeddings weighted by confidence times
// the corpus's mean note effectiveness, then scales by the four-component
// weighted multiplier. All-zero when no embeddings exist.
func memoryVector(responses []types.Response, notes []types.MemoryNote, dim int, recency, frequency, significance, persistence float64) []float64 {
	effectiveness := 0.5
	if len(notes) > 0 {
		var effs []float64
		for _, n := range notes {
			effs = append(effs, n.Effectiveness)
		}
		effectiveness = mean(effs)
	}

	var vectors [][]float64
	var weights []float64
	for _, r := range responses {
		if len(r.Embedding) == 0 {
			continue
		}
		vectors = append(vectors, r.Embedding)
		weights = append(weights, r.Confidence*effectiveness)
	}

	vec := types.WeightedMeanVector(vectors, weights, dim)
	multiplier := 0.25*recency + 0.25*frequency + 0.3*significance + 0.2*persistence
	return types.ScaleVector(vec, multiplier)
}
