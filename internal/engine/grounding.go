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

// FactStats summarises external fact-checking results for a domain.
type FactStats struct {
	Verified               int
	Disputed               int
	Total                  int
	VerificationConfidence float64
}

// FactProvider supplies fact-checking statistics. Optional: when absent or
// empty, factual accuracy falls back to mean response confidence.
type FactProvider interface {
	FactStats(ctx context.Context, domainID string) (FactStats, error)
}

// ModelReliability holds tracked accuracy and consistency metrics for one
// contributing model.
type ModelReliability struct {
	Model       string
	Accuracy    float64
	Consistency float64
}

// ReliabilityProvider supplies per-model reliability metrics. Optional:
// when absent, source reliability falls back to a confidence-weighted
// average across models.
type ReliabilityProvider interface {
	ModelReliability(ctx context.Context, domainID string) ([]ModelReliability, error)
}

// GroundingConfig configures the grounding tensor engine.
type GroundingConfig struct {
	// LookbackDays is the response window, default 90.
	LookbackDays int

	// EmbeddingDim is the system-wide embedding dimension.
	EmbeddingDim int

	// VectorLimit caps how many embeddings feed the vector.
	VectorLimit int
}

// Normalize fills zero fields with defaults.
func (c *GroundingConfig) Normalize() {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 90
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = 768
	}
	if c.VectorLimit <= 0 {
		c.VectorLimit = 30
	}
}

// GroundingEngine scores how factually reliable the corpus's claims about
// a domain are: factual accuracy, data consistency, source reliability,
// temporal stability and cross-model validation.
type GroundingEngine struct {
	store       storage.ResponseStore
	sink        storage.ScoreSink
	facts       FactProvider
	reliability ReliabilityProvider
	cfg         GroundingConfig
	now         func() time.Time
}

// NewGroundingEngine creates a grounding engine. The fact and reliability
// providers may be nil; the engine then uses its confidence-based
// fallbacks.
func NewGroundingEngine(store storage.ResponseStore, sink storage.ScoreSink, facts FactProvider, reliability ReliabilityProvider, cfg GroundingConfig) *GroundingEngine {
	cfg.Normalize()
	return &GroundingEngine{store: store, sink: sink, facts: facts, reliability: reliability, cfg: cfg, now: time.Now}
}

// Compute scores the five grounding components, classifies the grounding
// strength and upserts the current grounding tensor record.
func (e *GroundingEngine) Compute(ctx context.Context, domainID string) (*types.TensorRecord, error) {
	now := e.now()

	since := now.AddDate(0, 0, -e.cfg.LookbackDays)
	responses, err := e.store.ListResponses(ctx, domainID, since)
	if err != nil {
		return nil, fmt.Errorf("engine: grounding: list responses: %w", err)
	}

	factual, err := e.factualAccuracy(ctx, domainID, responses)
	if err != nil {
		return nil, err
	}
	reliability, err := e.sourceReliability(ctx, domainID, responses)
	if err != nil {
		return nil, err
	}
	consistency := dataConsistency(responses)
	stability := temporalStability(responses, now)
	crossVal := crossValidation(responses)

	composite := clamp01(math.Pow(
		0.3*factual+0.25*consistency+0.2*reliability+0.15*stability+0.1*crossVal,
		1.2,
	))

	buckets := reliabilityBuckets(responses)
	label := groundingLabel(composite, buckets)

	subScores := map[string]float64{
		types.ScoreFactualAccuracy:   factual,
		types.ScoreDataConsistency:   consistency,
		types.ScoreSourceReliability: reliability,
		types.ScoreTemporalStability: stability,
		types.ScoreCrossValidation:   crossVal,
	}
	for key, ratio := range buckets {
		subScores[key] = ratio
	}

	record := &types.TensorRecord{
		ID:             uuid.NewString(),
		DomainID:       domainID,
		TensorType:     types.TensorGrounding,
		Vector:         e.groundingVector(responses, composite),
		SubScores:      subScores,
		Composite:      composite,
		Label:          label,
		DecayRate:      types.DefaultDecayRate,
		LastAccessedAt: now,
	}
	if err := record.Validate(); err != nil {
		return nil, fmt.Errorf("engine: grounding: %w", err)
	}
	if err := e.sink.UpsertTensor(ctx, record); err != nil {
		return nil, fmt.Errorf("engine: grounding: upsert tensor: %w", err)
	}
	point := types.SeriesPoint{
		DomainID:   domainID,
		TensorType: types.TensorGrounding,
		Value:      composite,
		At:         now,
	}
	if err := e.sink.AppendSeriesPoint(ctx, point); err != nil {
		return nil, fmt.Errorf("engine: grounding: append series: %w", err)
	}
	return record, nil
}

// factualAccuracy blends the verified-fact ratio (50%), the complement of
// the disputed ratio (30%) and mean verification confidence (20%). With no
// checked facts it falls back to mean response confidence.
func (e *GroundingEngine) factualAccuracy(ctx context.Context, domainID string, responses []types.Response) (float64, error) {
	if e.facts == nil {
		return fallbackConfidence(responses), nil
	}
	stats, err := e.facts.FactStats(ctx, domainID)
	if err != nil {
		return 0, fmt.Errorf("engine: grounding: fact stats: %w", err)
	}
	if stats.Total == 0 {
		return fallbackConfidence(responses), nil
	}
	total := float64(stats.Total)
	verified := float64(stats.Verified) / total
	disputed := float64(stats.Disputed) / total
	return clamp01(0.5*verified + 0.3*(1-disputed) + 0.2*stats.VerificationConfidence), nil
}

// sourceReliability blends per-model accuracy, consistency and mean
// confidence (40/30/20) plus a capped diversity bonus of 0.02 per distinct
// contributing model. Without tracked metrics it falls back to a
// confidence-weighted average across models.
func (e *GroundingEngine) sourceReliability(ctx context.Context, domainID string, responses []types.Response) (float64, error) {
	modelConf := make(map[string][]float64)
	for _, r := range responses {
		modelConf[r.Model] = append(modelConf[r.Model], r.Confidence)
	}
	if len(modelConf) == 0 {
		return 0.5, nil
	}
	bonus := math.Min(0.02*float64(len(modelConf)), 0.2)

	var metrics []ModelReliability
	if e.reliability != nil {
		var err error
		metrics, err = e.reliability.ModelReliability(ctx, domainID)
		if err != nil {
			return 0, fmt.Errorf("engine: grounding: model reliability: %w", err)
		}
	}

	if len(metrics) == 0 {
		var weighted, total float64
		for _, confs := range modelConf {
			m := mean(confs)
			weighted += m * m
			total += m
		}
		return clamp01(safeRatio(weighted, total) + bonus), nil
	}

	var scores []float64
	for _, m := range metrics {
		conf := mean(modelConf[m.Model])
		scores = append(scores, 0.4*m.Accuracy+0.3*m.Consistency+0.2*conf)
	}
	return clamp01(mean(scores) + bonus), nil
}

// dataConsistency blends majority agreement within each prompt type (the
// share of responses matching the modal fingerprint), an exponential
// penalty for discrepancy count, a response-diversity penalty and an
// inverse-variance penalty on confidence, weighted 40/30/20/10.
func dataConsistency(responses []types.Response) float64 {
	if len(responses) == 0 {
		return 0.5
	}

	byPrompt := make(map[string][]types.Response)
	var confs []float64
	for _, r := range responses {
		byPrompt[r.PromptType] = append(byPrompt[r.PromptType], r)
		confs = append(confs, r.Confidence)
	}

	// A prompt type with N distinct fingerprints contributes N-1
	// discrepancies; a fully agreeing prompt type contributes none.
	var discrepancies float64
	var modalShares, diversities []float64
	for _, group := range byPrompt {
		counts := make(map[string]int)
		modal := 0
		for _, r := range group {
			counts[r.Fingerprint]++
			if counts[r.Fingerprint] > modal {
				modal = counts[r.Fingerprint]
			}
		}
		discrepancies += float64(len(counts) - 1)
		modalShares = append(modalShares, float64(modal)/float64(len(group)))
		diversities = append(diversities, float64(len(counts))/float64(len(group)))
	}

	agreement := mean(modalShares)
	expPenalty := math.Exp(-discrepancies / float64(len(responses)))
	confStability := inverseVariance(confs)

	return clamp01(0.4*agreement + 0.3*expPenalty + 0.2*(1-mean(diversities)) + 0.1*confStability)
}

// temporalStability blends inverse-variance of weekly mean confidence
// (50%), week coverage over a 12-week window (30%) and uniformity of
// weekly response volume (20%).
func temporalStability(responses []types.Response, now time.Time) float64 {
	if len(responses) == 0 {
		return 0.5
	}

	const weeks = 12
	confByWeek := make(map[int][]float64)
	volumes := make([]float64, weeks)
	for _, r := range responses {
		age := now.Sub(r.CreatedAt)
		if age < 0 {
			continue
		}
		week := int(age.Hours() / (7 * 24))
		if week >= weeks {
			continue
		}
		confByWeek[week] = append(confByWeek[week], r.Confidence)
		volumes[week]++
	}
	if len(confByWeek) == 0 {
		return 0.5
	}

	var weeklyMeans []float64
	minVol, maxVol := math.Inf(1), 0.0
	for week, confs := range confByWeek {
		weeklyMeans = append(weeklyMeans, mean(confs))
		if volumes[week] < minVol {
			minVol = volumes[week]
		}
		if volumes[week] > maxVol {
			maxVol = volumes[week]
		}
	}

	coverage := float64(len(confByWeek)) / weeks
	uniformity := 0.5
	if maxVol > 0 {
		uniformity = minVol / maxVol
	}

	return clamp01(0.5*inverseVariance(weeklyMeans) + 0.3*coverage + 0.2*uniformity)
}

// crossValidation measures pairwise agreement between models answering the
// same prompt type: identical fingerprints score 1.0, otherwise textual
// similarity. Blended 50/30/20 with the mean of each pair's minimum
// confidence and a capped pair-diversity bonus.
func crossValidation(responses []types.Response) float64 {
	byPrompt := make(map[string][]types.Response)
	for _, r := range responses {
		byPrompt[r.PromptType] = append(byPrompt[r.PromptType], r)
	}

	var agreements, minConfs []float64
	pairs := make(map[string]struct{})
	for _, group := range byPrompt {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Model == b.Model {
					continue
				}
				agreements = append(agreements, pairAgreementRaw(a, b))
				minConfs = append(minConfs, math.Min(a.Confidence, b.Confidence))
				key := a.Model + "\x00" + b.Model
				if a.Model > b.Model {
					key = b.Model + "\x00" + a.Model
				}
				pairs[key] = struct{}{}
			}
		}
	}
	if len(agreements) == 0 {
		return 0.5
	}

	diversity := math.Min(float64(len(pairs))/10, 1)
	return clamp01(0.5*mean(agreements) + 0.3*mean(minConfs) + 0.2*diversity)
}

// pairAgreementRaw scores one cross-model response pair: 1.0 on identical
// fingerprint, else textual similarity.
func pairAgreementRaw(a, b types.Response) float64 {
	if a.Fingerprint != "" && a.Fingerprint == b.Fingerprint {
		return 1
	}
	return textSimilarity(a.Content, b.Content)
}

// reliabilityBuckets classifies every response into a confidence bucket
// and returns the ratio of each: high >= 0.8, medium >= 0.6, low >= 0.4,
// else unverified.
func reliabilityBuckets(responses []types.Response) map[string]float64 {
	buckets := map[string]float64{
		types.ScoreHighConfRatio:   0,
		types.ScoreMediumConfRatio: 0,
		types.ScoreLowConfRatio:    0,
		types.ScoreUnverifiedRatio: 0,
	}
	if len(responses) == 0 {
		return buckets
	}
	for _, r := range responses {
		switch {
		case r.Confidence >= 0.8:
			buckets[types.ScoreHighConfRatio]++
		case r.Confidence >= 0.6:
			buckets[types.ScoreMediumConfRatio]++
		case r.Confidence >= 0.4:
			buckets[types.ScoreLowConfRatio]++
		default:
			buckets[types.ScoreUnverifiedRatio]++
		}
	}
	total := float64(len(responses))
	for key := range buckets {
		buckets[key] /= total
	}
	return buckets
}

// groundingLabel classifies the composite with the reliability ratios:
// strong needs a high composite and mostly high-confidence responses,
// moderate tolerates some unverified, weak covers the mid range, anything
// below is unstable.
func groundingLabel(composite float64, buckets map[string]float64) string {
	switch {
	case composite >= 0.8 && buckets[types.ScoreHighConfRatio] >= 0.6:
		return types.GroundingStrong
	case composite >= 0.6 && buckets[types.ScoreUnverifiedRatio] < 0.2:
		return types.GroundingModerate
	case composite >= 0.4:
		return types.GroundingWeak
	default:
		return types.GroundingUnstable
	}
}

// groundingVector aggregates up to VectorLimit response embeddings
// weighted by confidence, scaled by the composite grounding weight.
func (e *GroundingEngine) groundingVector(responses []types.Response, composite float64) []float64 {
	var vectors [][]float64
	var weights []float64
	for i := len(responses) - 1; i >= 0 && len(vectors) < e.cfg.VectorLimit; i-- {
		r := responses[i]
		if len(r.Embedding) == 0 {
			continue
		}
		vectors = append(vectors, r.Embedding)
		weights = append(weights, r.Confidence)
	}
	vec := types.WeightedMeanVector(vectors, weights, e.cfg.EmbeddingDim)
	return types.ScaleVector(vec, composite)
}

// fallbackConfidence is the factual-accuracy fallback when no facts have
// been checked: mean response confidence, neutral for an empty corpus.
func fallbackConfidence(responses []types.Response) float64 {
	if len(responses) == 0 {
		return 0.5
	}
	return clamp01(meanConfidence(responses))
}
