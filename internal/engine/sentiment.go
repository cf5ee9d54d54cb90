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

// SentimentConfig configures the sentiment tensor engine.
type SentimentConfig struct {
	// LookbackDays is the response window, default 90.
	LookbackDays int

	// EmbeddingDim is the system-wide embedding dimension.
	EmbeddingDim int

	// NoteLimit caps how many memory notes feed the emotional profile.
	NoteLimit int

	// VectorLimit caps how many recent embeddings feed the vector.
	VectorLimit int

	// ZThreshold is the z-score above which a spike anomaly is recorded.
	ZThreshold float64

	// VolatilityThreshold is the mixed-ratio above which a volatility
	// anomaly is recorded.
	VolatilityThreshold float64
}

// Normalize fills zero fields with defaults.
func (c *SentimentConfig) Normalize() {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 90
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = 768
	}
	if c.NoteLimit <= 0 {
		c.NoteLimit = 50
	}
	if c.VectorLimit <= 0 {
		c.VectorLimit = 20
	}
	if c.ZThreshold <= 0 {
		c.ZThreshold = 2.5
	}
	if c.VolatilityThreshold <= 0 {
		c.VolatilityThreshold = 0.6
	}
}

// emotionProfile holds the five accumulated emotional cues, each in [0,1].
type emotionProfile struct {
	Confidence  float64
	Excitement  float64
	Concern     float64
	Urgency     float64
	Opportunity float64
}

// SentimentEngine scores emotional tone and market-sentiment
// classification for a domain, and runs anomaly detection over its own
// composite time series.
type SentimentEngine struct {
	store  storage.ResponseStore
	sink   storage.ScoreSink
	scorer TextScorer
	cfg    SentimentConfig
	now    func() time.Time
}

// NewSentimentEngine creates a sentiment engine. A nil scorer falls back to
// the default keyword lexicon.
func NewSentimentEngine(store storage.ResponseStore, sink storage.ScoreSink, scorer TextScorer, cfg SentimentConfig) *SentimentEngine {
	cfg.Normalize()
	if scorer == nil {
		scorer = NewLexiconScorer()
	}
	return &SentimentEngine{store: store, sink: sink, scorer: scorer, cfg: cfg, now: time.Now}
}

// Compute scores the domain's sentiment, upserts the current sentiment
// tensor record, appends the composite to the time series and records any
// detected anomalies. An empty corpus resolves to the neutral distribution.
func (e *SentimentEngine) Compute(ctx context.Context, domainID string) (*types.TensorRecord, error) {
	now := e.now()

	since := now.AddDate(0, 0, -e.cfg.LookbackDays)
	responses, err := e.store.ListResponses(ctx, domainID, since)
	if err != nil {
		return nil, fmt.Errorf("engine: sentiment: list responses: %w", err)
	}
	notes, err := e.store.ListMemoryNotes(ctx, domainID, e.cfg.NoteLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: sentiment: list notes: %w", err)
	}

	dist := e.corpusDistribution(responses)
	emotions := emotionsFromNotes(notes, meanConfidence(responses))
	label := marketLabel(dist, emotions)
	composite := sentimentComposite(dist, emotions)

	record := &types.TensorRecord{
		ID:         uuid.NewString(),
		DomainID:   domainID,
		TensorType: types.TensorSentiment,
		Vector:     e.sentimentVector(responses, emotions),
		SubScores: map[string]float64{
			types.ScorePositive:    dist.Positive,
			types.ScoreNegative:    dist.Negative,
			types.ScoreNeutral:     dist.Neutral,
			types.ScoreMixed:       dist.Mixed,
			types.ScoreConfidence:  emotions.Confidence,
			types.ScoreExcitement:  emotions.Excitement,
			types.ScoreConcern:     emotions.Concern,
			types.ScoreUrgency:     emotions.Urgency,
			types.ScoreOpportunity: emotions.Opportunity,
			types.ScoreVolatility:  clamp01(dist.Mixed + 0.5*emotions.Urgency),
		},
		Composite:      composite,
		Label:          label,
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: now,
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("engine: sentiment: %w", err)
	}

	// Pull the trailing series before appending the current point so the
	// anomaly baseline excludes the value being tested.
	trailing, err := e.sink.ListSeriesPoints(ctx, domainID, types.TensorSentiment, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("engine: sentiment: list series: %w", err)
	}

	if err := e.sink.UpsertTensor(ctx, record); err != nil {
		return nil, fmt.Errorf("engine: sentiment: upsert tensor: %w", err)
	}
	point := types.SeriesPoint{
		DomainID:   domainID,
		TensorType: types.TensorSentiment,
		Value:      composite,
		At:         now,
	}
	if err := e.sink.AppendSeriesPoint(ctx, point); err != nil {
		return nil, fmt.Errorf("engine: sentiment: append series: %w", err)
	}

	if err := e.detectAnomalies(ctx, domainID, composite, dist, trailing, now); err != nil {
		return nil, err
	}
	return record, nil
}

// corpusDistribution scores each response's text, weights its distribution
// by the response's confidence and normalizes the sum across the corpus.
func (e *SentimentEngine) corpusDistribution(responses []types.Response) Distribution {
	if len(responses) == 0 {
		return NeutralDistribution()
	}
	var sum Distribution
	for _, r := range responses {
		w := r.Confidence
		if w <= 0 {
			continue
		}
		sum = sum.Add(e.scorer.Score(r.Content).Scale(w))
	}
	return sum.Normalize()
}

// emotionsFromNotes accumulates small fixed increments per note based on
// its priority and lexical cues, each clamped to [0,1]. The confidence
// emotion blends the accumulated value 70/30 with the corpus's mean
// response confidence.
func emotionsFromNotes(notes []types.MemoryNote, corpusConfidence float64) emotionProfile {
	var p emotionProfile
	for _, n := range notes {
		p.Confidence += n.Confidence * 0.1
		if n.HighPriority() {
			p.Concern += 0.05
			p.Urgency += 0.05
		}
		if containsPhrase(n.Content, "opportunity") {
			p.Opportunity += 0.1
		}
		if containsPhrase(n.Content, "growth") || containsPhrase(n.Content, "potential") {
			p.Opportunity += 0.05
		}
		if containsPhrase(n.Content, "threat") || containsPhrase(n.Content, "risk") {
			p.Concern += 0.1
		}
		if containsPhrase(n.Content, "breakthrough") || containsPhrase(n.Content, "innovative") {
			p.Excitement += 0.1
		}
		if containsPhrase(n.Content, "urgent") || containsPhrase(n.Content, "immediate") {
			p.Urgency += 0.1
		}
	}
	p.Confidence = clamp01(0.7*clamp01(p.Confidence) + 0.3*corpusConfidence)
	p.Excitement = clamp01(p.Excitement)
	p.Concern = clamp01(p.Concern)
	p.Urgency = clamp01(p.Urgency)
	p.Opportunity = clamp01(p.Opportunity)
	return p
}

// sentimentVector aggregates the most recent response embeddings weighted
// by each response's non-neutral sentiment mass times the overall emotion
// intensity, L2-normalized.
func (e *SentimentEngine) sentimentVector(responses []types.Response, emotions emotionProfile) []float64 {
	intensity := (emotions.Confidence + emotions.Excitement + emotions.Concern +
		emotions.Urgency + emotions.Opportunity) / 5
	emotionWeight := 0.5 + 0.5*intensity

	// Responses arrive oldest first; walk backwards for the newest.
	var vectors [][]float64
	var weights []float64
	for i := len(responses) - 1; i >= 0 && len(vectors) < e.cfg.VectorLimit; i-- {
		r := responses[i]
		if len(r.Embedding) == 0 {
			continue
		}
		d := e.scorer.Score(r.Content)
		vectors = append(vectors, r.Embedding)
		weights = append(weights, (1-d.Neutral)*emotionWeight)
	}

	return types.L2Normalize(types.WeightedMeanVector(vectors, weights, e.cfg.EmbeddingDim))
}

// marketLabel classifies the distribution: volatile when mixed plus half
// the urgency exceeds 0.6, otherwise bullish/bearish/neutral by the
// positive-to-negative ratio.
func marketLabel(dist Distribution, emotions emotionProfile) string {
	if dist.Mixed+0.5*emotions.Urgency > 0.6 {
		return types.MarketVolatile
	}
	switch {
	case dist.Negative == 0 && dist.Positive > 0:
		return types.MarketBullish
	case dist.Negative == 0:
		return types.MarketNeutral
	case dist.Positive/dist.Negative > 2:
		return types.MarketBullish
	case dist.Positive/dist.Negative < 0.5:
		return types.MarketBearish
	default:
		return types.MarketNeutral
	}
}

// sentimentComposite rescales positive minus negative minus a fifth of the
// mixed ratio into [0,1], then applies the emotion modifier.
func sentimentComposite(dist Distribution, emotions emotionProfile) float64 {
	base := dist.Positive - dist.Negative - 0.2*dist.Mixed
	scaled := (base + 1) / 2
	modifier := 0.2*emotions.Confidence +
		0.15*emotions.Excitement -
		0.1*emotions.Concern -
		0.05*emotions.Urgency +
		0.1*emotions.Opportunity
	return clamp01(scaled + modifier)
}

// detectAnomalies records a spike anomaly when the composite deviates more
// than the z-threshold from the trailing 30-day series, and a volatility
// anomaly when the mixed ratio is high. An undefined z-score (flat or
// short series) skips the spike check without error.
func (e *SentimentEngine) detectAnomalies(ctx context.Context, domainID string, composite float64, dist Distribution, trailing []types.SeriesPoint, now time.Time) error {
	if len(trailing) >= 2 {
		values := make([]float64, len(trailing))
		for i, p := range trailing {
			values[i] = p.Value
		}
		if z, ok := zScore(composite, values); ok && math.Abs(z) > e.cfg.ZThreshold {
			anomalyType := types.AnomalyPositiveSpike
			if z < 0 {
				anomalyType = types.AnomalyNegativeSpike
			}
			anomaly := &types.SentimentAnomaly{
				ID:          uuid.NewString(),
				DomainID:    domainID,
				AnomalyType: anomalyType,
				Severity:    math.Min(1, math.Abs(z)/4),
				ZScore:      z,
				DetectedAt:  now,
			}
			if err := e.sink.RecordAnomaly(ctx, anomaly); err != nil {
				return fmt.Errorf("engine: sentiment: record anomaly: %w", err)
			}
		}
	}

	if dist.Mixed > e.cfg.VolatilityThreshold {
		anomaly := &types.SentimentAnomaly{
			ID:          uuid.NewString(),
			DomainID:    domainID,
			AnomalyType: types.AnomalyHighVolatility,
			Severity:    clamp01(dist.Mixed),
			DetectedAt:  now,
		}
		if err := e.sink.RecordAnomaly(ctx, anomaly); err != nil {
			return fmt.Errorf("engine: sentiment: record anomaly: %w", err)
		}
	}
	return nil
}

// meanConfidence returns the mean confidence across responses, 0 when the
// corpus is empty.
func meanConfidence(responses []types.Response) float64 {
	if len(responses) == 0 {
		return 0
	}
	var sum float64
	for _, r := range responses {
		sum += r.Confidence
	}
	return sum / float64(len(responses))
}
