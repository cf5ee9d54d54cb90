package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/modelmind/tensorcore/internal/storage"
	"github.com/modelmind/tensorcore/pkg/types"
)

// dissensusPhrases are the key phrases checked per prompt type when
// extracting disagreement topics.
var dissensusPhrases = []string{
	"growth", "decline", "stable",
	"leader", "follower", "challenger",
	"innovative", "traditional", "conservative",
}

// ConsensusConfig configures the consensus scorer.
type ConsensusConfig struct {
	// LookbackDays is the response window, default 90.
	LookbackDays int

	// HistoryLimit is how many trailing snapshots feed the insight
	// checks. Default 10.
	HistoryLimit int

	// ShiftThreshold is the composite delta above which a shift insight
	// is emitted. Default 0.2.
	ShiftThreshold float64
}

// Normalize fills zero fields with defaults.
func (c *ConsensusConfig) Normalize() {
	if c.LookbackDays <= 0 {
		c.LookbackDays = 90
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.ShiftThreshold <= 0 {
		c.ShiftThreshold = 0.2
	}
}

// ConsensusEngine measures how much independent models agree about a
// domain, flags specific disagreement topics and emits insights when
// agreement shifts. Every run also recomputes the model-agreement matrix.
type ConsensusEngine struct {
	store storage.ResponseStore
	sink  storage.ScoreSink
	cfg   ConsensusConfig
	now   func() time.Time
}

// NewConsensusEngine creates a consensus scorer over the given store and
// sink.
func NewConsensusEngine(store storage.ResponseStore, sink storage.ScoreSink, cfg ConsensusConfig) *ConsensusEngine {
	cfg.Normalize()
	return &ConsensusEngine{store: store, sink: sink, cfg: cfg, now: time.Now}
}

// Score runs one consensus scoring pass: computes the four components,
// extracts dissensus points, appends the score, upserts the agreement
// matrix and emits any shift or persistent-conflict insights.
func (e *ConsensusEngine) Score(ctx context.Context, domainID string) (*types.ConsensusScore, error) {
	now := e.now()

	since := now.AddDate(0, 0, -e.cfg.LookbackDays)
	responses, err := e.store.ListResponses(ctx, domainID, since)
	if err != nil {
		return nil, fmt.Errorf("engine: consensus: list responses: %w", err)
	}

	pairs := collectPairs(responses)
	agreement := modelAgreementScore(pairs)
	temporal := temporalConsistency(responses, now)
	crossPrompt := crossPromptAlignment(responses)
	confidence := confidenceAlignment(responses)

	composite := clamp01(logistic(
		0.4*agreement+0.25*temporal+0.2*crossPrompt+0.15*confidence,
		0.5, 5,
	))

	points := dissensusPoints(responses)
	level := agreementLevel(composite, points)

	// Trailing snapshots are read before the append so insight checks
	// compare against genuinely previous runs.
	history, err := e.sink.ListConsensusScores(ctx, domainID, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: consensus: list history: %w", err)
	}

	score := &types.ConsensusScore{
		ID:                   uuid.NewString(),
		DomainID:             domainID,
		Composite:            composite,
		AgreementLevel:       level,
		ModelAgreement:       agreement,
		TemporalConsistency:  temporal,
		CrossPromptAlignment: crossPrompt,
		ConfidenceAlignment:  confidence,
		DissensusPoints:      points,
		ComputedAt:           now,
	}
	if err := e.sink.AppendConsensusScore(ctx, score); err != nil {
		return nil, fmt.Errorf("engine: consensus: append score: %w", err)
	}

	if err := e.updateMatrix(ctx, domainID, pairs, now); err != nil {
		return nil, err
	}
	if err := e.emitInsights(ctx, domainID, composite, level, history, now); err != nil {
		return nil, err
	}
	return score, nil
}

// responsePair is one cross-model comparison within a prompt type.
type responsePair struct {
	modelA, modelB string
	agreement      float64
	confidence     float64
}

// collectPairs builds every cross-model response pair within each prompt
// type. Identical fingerprints agree at 1.0 exactly; otherwise agreement
// is banded by textual similarity (0.8/0.6/0.4/0).
func collectPairs(responses []types.Response) []responsePair {
	byPrompt := make(map[string][]types.Response)
	for _, r := range responses {
		byPrompt[r.PromptType] = append(byPrompt[r.PromptType], r)
	}

	var pairs []responsePair
	for _, group := range byPrompt {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.Model == b.Model {
					continue
				}
				pairs = append(pairs, responsePair{
					modelA:     a.Model,
					modelB:     b.Model,
					agreement:  bandedAgreement(a, b),
					confidence: (a.Confidence + b.Confidence) / 2,
				})
			}
		}
	}
	return pairs
}

// bandedAgreement maps a response pair to an agreement band.
func bandedAgreement(a, b types.Response) float64 {
	if a.Fingerprint != "" && a.Fingerprint == b.Fingerprint {
		return 1
	}
	switch sim := textSimilarity(a.Content, b.Content); {
	case sim >= 0.75:
		return 0.8
	case sim >= 0.5:
		return 0.6
	case sim >= 0.25:
		return 0.4
	default:
		return 0
	}
}

// modelAgreementScore combines mean agreement, confidence-weighted mean
// agreement and an agreement-variance penalty, weighted 50/40/10. A domain
// with fewer than two contributing models scores neutral.
func modelAgreementScore(pairs []responsePair) float64 {
	if len(pairs) == 0 {
		return 0.5
	}

	var scores []float64
	var weighted, totalWeight float64
	for _, p := range pairs {
		scores = append(scores, p.agreement)
		weighted += p.agreement * p.confidence
		totalWeight += p.confidence
	}

	stability := math.Max(1-variance(scores), 0)
	return clamp01(0.5*mean(scores) + 0.4*safeRatio(weighted, totalWeight) + 0.1*stability)
}

// temporalConsistency scores per (model, prompt type) how stable the
// answers are over time: inverse weekly confidence variance, inverse mean
// distinct-fingerprint count and week coverage over 13 weeks, combined
// 40/40/20, averaged across groups.
func temporalConsistency(responses []types.Response, now time.Time) float64 {
	type key struct{ model, prompt string }
	groups := make(map[key][]types.Response)
	for _, r := range responses {
		k := key{r.Model, r.PromptType}
		groups[k] = append(groups[k], r)
	}
	if len(groups) == 0 {
		return 0.5
	}

	const weeks = 13
	var scores []float64
	for _, group := range groups {
		confByWeek := make(map[int][]float64)
		hashesByWeek := make(map[int]map[string]struct{})
		for _, r := range group {
			age := now.Sub(r.CreatedAt)
			if age < 0 {
				continue
			}
			week := int(age.Hours() / (7 * 24))
			if week >= weeks {
				continue
			}
			confByWeek[week] = append(confByWeek[week], r.Confidence)
			if hashesByWeek[week] == nil {
				hashesByWeek[week] = make(map[string]struct{})
			}
			hashesByWeek[week][r.Fingerprint] = struct{}{}
		}
		if len(confByWeek) == 0 {
			continue
		}

		var weeklyMeans, distinct []float64
		for week, confs := range confByWeek {
			weeklyMeans = append(weeklyMeans, mean(confs))
			distinct = append(distinct, float64(len(hashesByWeek[week])))
		}

		// Lower response diversity within a week means more consistency.
		diversity := 1 / math.Max(mean(distinct), 1)
		coverage := float64(len(confByWeek)) / weeks

		scores = append(scores, 0.4*inverseVariance(weeklyMeans)+0.4*diversity+0.2*coverage)
	}
	if len(scores) == 0 {
		return 0.5
	}
	return clamp01(mean(scores))
}

// crossPromptAlignment scores, per model answering at least two prompt
// types, the similarity of its answers across prompts (60%) blended with
// the complement of its cross-prompt confidence delta (40%).
func crossPromptAlignment(responses []types.Response) float64 {
	byModel := make(map[string]map[string][]types.Response)
	for _, r := range responses {
		if byModel[r.Model] == nil {
			byModel[r.Model] = make(map[string][]types.Response)
		}
		byModel[r.Model][r.PromptType] = append(byModel[r.Model][r.PromptType], r)
	}

	var scores []float64
	for _, prompts := range byModel {
		if len(prompts) < 2 {
			continue
		}

		// Represent each prompt type by its newest response.
		var latest []types.Response
		for _, group := range prompts {
			newest := group[0]
			for _, r := range group {
				if r.CreatedAt.After(newest.CreatedAt) {
					newest = r
				}
			}
			latest = append(latest, newest)
		}

		var sims, confDeltas []float64
		for i := 0; i < len(latest); i++ {
			for j := i + 1; j < len(latest); j++ {
				sims = append(sims, textSimilarity(latest[i].Content, latest[j].Content))
				confDeltas = append(confDeltas, math.Abs(latest[i].Confidence-latest[j].Confidence))
			}
		}
		scores = append(scores, 0.6*mean(sims)+0.4*(1-mean(confDeltas)))
	}
	if len(scores) == 0 {
		return 0.5
	}
	return clamp01(mean(scores))
}

// confidenceAlignment measures how coherent model confidences are: mean
// deviation from the population mean (50%), inverse inter-model variance
// (30%) and inverse mean intra-model variance (20%).
func confidenceAlignment(responses []types.Response) float64 {
	byModel := confidenceByModel(responses)
	if len(byModel) == 0 {
		return 0.5
	}

	var modelMeans, intraVariances []float64
	for _, confs := range byModel {
		modelMeans = append(modelMeans, mean(confs))
		intraVariances = append(intraVariances, variance(confs))
	}
	population := mean(modelMeans)

	var deviations []float64
	for _, m := range modelMeans {
		deviations = append(deviations, math.Abs(m-population))
	}

	return clamp01(0.5*(1-mean(deviations)) +
		0.3*inverseVariance(modelMeans) +
		0.2*(1/(1+mean(intraVariances))))
}

// dissensusPoints extracts, per prompt type, the key phrases that fewer
// than 70% of contributing models mention, and returns the ten
// most-disagreed-upon. Implicated models are the ones not mentioning the
// phrase.
func dissensusPoints(responses []types.Response) []types.DissensusPoint {
	type promptGroup struct {
		models  map[string]struct{}
		byModel map[string][]string // model -> contents
	}
	groups := make(map[string]*promptGroup)
	for _, r := range responses {
		g := groups[r.PromptType]
		if g == nil {
			g = &promptGroup{
				models:  make(map[string]struct{}),
				byModel: make(map[string][]string),
			}
			groups[r.PromptType] = g
		}
		g.models[r.Model] = struct{}{}
		g.byModel[r.Model] = append(g.byModel[r.Model], r.Content)
	}

	var points []types.DissensusPoint
	for promptType, g := range groups {
		if len(g.models) < 2 {
			continue
		}
		for _, phrase := range dissensusPhrases {
			var mentioning int
			var silent []string
			for model, contents := range g.byModel {
				found := false
				for _, content := range contents {
					if containsPhrase(content, phrase) {
						found = true
						break
					}
				}
				if found {
					mentioning++
				} else {
					silent = append(silent, model)
				}
			}
			if mentioning == 0 {
				continue
			}
			fraction := float64(mentioning) / float64(len(g.models))
			if fraction >= 0.7 {
				continue
			}
			sort.Strings(silent)
			points = append(points, types.DissensusPoint{
				Topic:      phrase,
				PromptType: promptType,
				Divergence: 1 - fraction,
				Models:     silent,
			})
		}
	}

	sort.Slice(points, func(i, j int) bool {
		if points[i].Divergence != points[j].Divergence {
			return points[i].Divergence > points[j].Divergence
		}
		if points[i].Topic != points[j].Topic {
			return points[i].Topic < points[j].Topic
		}
		return points[i].PromptType < points[j].PromptType
	})
	if len(points) > 10 {
		points = points[:10]
	}
	return points
}

// agreementLevel classifies the composite against the dissensus points.
// Any composite below 0.4 is conflicted regardless of point count.
func agreementLevel(composite float64, points []types.DissensusPoint) types.AgreementLevel {
	var severe int
	for _, p := range points {
		if p.Divergence > 0.5 {
			severe++
		}
	}
	switch {
	case composite >= 0.7 && severe == 0:
		return types.AgreementStrong
	case composite >= 0.6 && severe <= 2:
		return types.AgreementModerate
	case composite >= 0.4:
		return types.AgreementWeak
	default:
		return types.AgreementConflicted
	}
}

// updateMatrix folds the run's pairs into per-pair means and upserts every
// matrix entry, latest wins.
func (e *ConsensusEngine) updateMatrix(ctx context.Context, domainID string, pairs []responsePair, now time.Time) error {
	type entry struct {
		sum   float64
		count int
	}
	matrix := make(map[[2]string]*entry)
	for _, p := range pairs {
		key := [2]string{p.modelA, p.modelB}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		ent := matrix[key]
		if ent == nil {
			ent = &entry{}
			matrix[key] = ent
		}
		ent.sum += p.agreement
		ent.count++
	}

	for key, ent := range matrix {
		agreement := &types.ModelAgreement{
			DomainID:        domainID,
			ModelA:          key[0],
			ModelB:          key[1],
			Score:           ent.sum / float64(ent.count),
			ComparisonCount: ent.count,
			UpdatedAt:       now,
		}
		agreement.NormalizePair()
		if err := e.sink.UpsertModelAgreement(ctx, agreement); err != nil {
			return fmt.Errorf("engine: consensus: upsert agreement: %w", err)
		}
	}
	return nil
}

// emitInsights compares the run against trailing snapshots: a large
// composite shift emits an emerging-agreement or consensus-shift insight,
// and an unbroken run of conflicted snapshots emits a persistent-conflict
// insight.
func (e *ConsensusEngine) emitInsights(ctx context.Context, domainID string, composite float64, level types.AgreementLevel, history []types.ConsensusScore, now time.Time) error {
	if len(history) > 0 {
		delta := composite - history[0].Composite
		if math.Abs(delta) > e.cfg.ShiftThreshold {
			insightType := types.InsightConsensusShift
			direction := "declined"
			if delta > 0 {
				insightType = types.InsightEmergingAgreement
				direction = "improved"
			}
			impact := types.ImpactMedium
			if math.Abs(delta) > 2*e.cfg.ShiftThreshold {
				impact = types.ImpactHigh
			}
			insight := &types.ConsensusInsight{
				ID:          uuid.NewString(),
				DomainID:    domainID,
				InsightType: insightType,
				Impact:      impact,
				Description: fmt.Sprintf("Model consensus %s from %.2f to %.2f", direction, history[0].Composite, composite),
				CreatedAt:   now,
			}
			if err := e.sink.CreateInsight(ctx, insight); err != nil {
				return fmt.Errorf("engine: consensus: create insight: %w", err)
			}
		}
	}

	if level == types.AgreementConflicted && len(history) >= 3 {
		allConflicted := true
		for _, snapshot := range history {
			if snapshot.AgreementLevel != types.AgreementConflicted {
				allConflicted = false
				break
			}
		}
		if allConflicted {
			insight := &types.ConsensusInsight{
				ID:          uuid.NewString(),
				DomainID:    domainID,
				InsightType: types.InsightPersistentConflict,
				Impact:      types.ImpactHigh,
				Description: fmt.Sprintf("Models have remained conflicted across the last %d scoring runs", len(history)+1),
				CreatedAt:   now,
			}
			if err := e.sink.CreateInsight(ctx, insight); err != nil {
				return fmt.Errorf("engine: consensus: create insight: %w", err)
			}
		}
	}
	return nil
}
