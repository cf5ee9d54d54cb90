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

// DriftConfig configures the drift detector.
type DriftConfig struct {
	// WindowDays is the length of the recent window; the baseline window
	// is the equal-length window immediately preceding it. Default 30.
	WindowDays int

	// Threshold is the composite score above which drift is considered
	// detected and an alert is created. Default 0.3.
	Threshold float64

	// HistoryLimit is how many trailing results feed the drift-type
	// classification. Default 10.
	HistoryLimit int

	// NoteLimit caps how many memory notes are pulled per run.
	NoteLimit int
}

// Normalize fills zero fields with defaults.
func (c *DriftConfig) Normalize() {
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.NoteLimit <= 0 {
		c.NoteLimit = 500
	}
}

// DriftEngine compares a recent window against the equal-length baseline
// window immediately preceding it and scores four independent drift
// signals: concept, data, model and temporal.
type DriftEngine struct {
	store storage.ResponseStore
	sink  storage.ScoreSink
	cfg   DriftConfig
	now   func() time.Time
}

// NewDriftEngine creates a drift detector over the given store and sink.
func NewDriftEngine(store storage.ResponseStore, sink storage.ScoreSink, cfg DriftConfig) *DriftEngine {
	cfg.Normalize()
	return &DriftEngine{store: store, sink: sink, cfg: cfg, now: time.Now}
}

// Detect runs one drift detection pass for the domain, appends the result
// and creates an alert when the composite crosses the threshold.
func (e *DriftEngine) Detect(ctx context.Context, domainID string) (*types.DriftResult, error) {
	now := e.now()
	windowStart := now.AddDate(0, 0, -e.cfg.WindowDays)
	baselineStart := now.AddDate(0, 0, -2*e.cfg.WindowDays)

	all, err := e.store.ListResponses(ctx, domainID, baselineStart)
	if err != nil {
		return nil, fmt.Errorf("engine: drift: list responses: %w", err)
	}
	var baseline, recent []types.Response
	for _, r := range all {
		if r.CreatedAt.Before(windowStart) {
			baseline = append(baseline, r)
		} else {
			recent = append(recent, r)
		}
	}

	notes, err := e.store.ListMemoryNotes(ctx, domainID, e.cfg.NoteLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: drift: list notes: %w", err)
	}
	var baseNotes, recentNotes []types.MemoryNote
	for _, n := range notes {
		switch {
		case n.CreatedAt.Before(baselineStart):
		case n.CreatedAt.Before(windowStart):
			baseNotes = append(baseNotes, n)
		default:
			recentNotes = append(recentNotes, n)
		}
	}

	concept := conceptDrift(baseNotes, recentNotes)
	data := dataDrift(baseline, recent)
	model := modelDrift(baseline, recent)
	temporal := temporalDrift(all, now, e.cfg.WindowDays)

	raw := 0.35*concept + 0.3*data + 0.2*model + 0.15*temporal
	// tanh amplifies mid-range drift while the linear term keeps small
	// values nearly unchanged.
	composite := clamp01(0.9*math.Tanh(2*raw) + 0.1*raw)

	history, err := e.sink.ListDriftResults(ctx, domainID, e.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("engine: drift: list history: %w", err)
	}

	result := &types.DriftResult{
		ID:            uuid.NewString(),
		DomainID:      domainID,
		DriftScore:    composite,
		DriftType:     e.classifyType(concept, temporal, composite, history),
		Direction:     driftDirection(baseline, recent, baseNotes, recentNotes, composite),
		ConceptDrift:  concept,
		DataDrift:     data,
		ModelDrift:    model,
		TemporalDrift: temporal,
		Severity:      types.SeverityForScore(composite),
		DetectedAt:    now,
	}
	if err := e.sink.AppendDriftResult(ctx, result); err != nil {
		return nil, fmt.Errorf("engine: drift: append result: %w", err)
	}

	if composite >= e.cfg.Threshold {
		if err := e.raiseAlert(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// conceptDrift measures semantic pattern shift between windows: mean and
// max per-pattern confidence delta plus the ratios of disappeared and
// newly appeared patterns, weighted 30/20/25/25.
func conceptDrift(baseNotes, recentNotes []types.MemoryNote) float64 {
	basePatterns := patternConfidence(baseNotes)
	recentPatterns := patternConfidence(recentNotes)
	if len(basePatterns) == 0 && len(recentPatterns) == 0 {
		return 0
	}

	var deltas []float64
	var maxDelta, disappeared, appeared float64
	for pattern, baseConf := range basePatterns {
		recentConf, ok := recentPatterns[pattern]
		if !ok {
			disappeared++
			continue
		}
		d := math.Abs(recentConf - baseConf)
		deltas = append(deltas, d)
		if d > maxDelta {
			maxDelta = d
		}
	}
	for pattern := range recentPatterns {
		if _, ok := basePatterns[pattern]; !ok {
			appeared++
		}
	}

	disappearedRatio := cappedRatio(disappeared, float64(len(basePatterns)))
	appearedRatio := cappedRatio(appeared, float64(len(recentPatterns)))

	return clamp01(0.3*mean(deltas) + 0.2*maxDelta + 0.25*disappearedRatio + 0.25*appearedRatio)
}

// patternConfidence folds a window's notes into mean confidence per
// semantic pattern.
func patternConfidence(notes []types.MemoryNote) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]float64)
	for _, n := range notes {
		for _, p := range n.Patterns {
			sums[p] += n.Confidence
			counts[p]++
		}
	}
	out := make(map[string]float64, len(sums))
	for p, sum := range sums {
		out[p] = sum / counts[p]
	}
	return out
}

// dataDrift measures statistical shift in the corpus between windows:
// deltas in mean confidence, confidence stddev, relative mean response
// length and relative distinct-model count, weighted 40/30/20/10.
func dataDrift(baseline, recent []types.Response) float64 {
	if len(baseline) == 0 || len(recent) == 0 {
		return 0
	}

	baseConf, recentConf := confidences(baseline), confidences(recent)
	confDelta := math.Abs(mean(recentConf) - mean(baseConf))
	stdDelta := math.Abs(stdDev(recentConf) - stdDev(baseConf))

	baseLen, recentLen := meanLength(baseline), meanLength(recent)
	lenDelta := math.Min(math.Abs(recentLen-baseLen)/math.Max(baseLen, 1), 1)

	baseModels, recentModels := float64(distinctModels(baseline)), float64(distinctModels(recent))
	modelDelta := math.Min(math.Abs(recentModels-baseModels)/math.Max(baseModels, 1), 1)

	return clamp01(0.4*confDelta + 0.3*stdDelta + 0.2*lenDelta + 0.1*modelDelta)
}

// modelDrift measures per-model behaviour shift: mean and max per-model
// confidence delta, model churn and relative usage-volume delta, weighted
// 40/20/10/30.
func modelDrift(baseline, recent []types.Response) float64 {
	if len(baseline) == 0 || len(recent) == 0 {
		return 0
	}

	baseByModel := confidenceByModel(baseline)
	recentByModel := confidenceByModel(recent)

	var deltas []float64
	var maxDelta, churn float64
	for model, baseConfs := range baseByModel {
		recentConfs, ok := recentByModel[model]
		if !ok {
			churn++
			continue
		}
		d := math.Abs(mean(recentConfs) - mean(baseConfs))
		deltas = append(deltas, d)
		if d > maxDelta {
			maxDelta = d
		}
	}
	for model := range recentByModel {
		if _, ok := baseByModel[model]; !ok {
			churn++
		}
	}

	totalModels := float64(len(baseByModel) + len(recentByModel))
	churnRatio := cappedRatio(churn, totalModels)

	volumeDelta := math.Min(
		math.Abs(float64(len(recent))-float64(len(baseline)))/math.Max(float64(len(baseline)), 1),
		1,
	)

	return clamp01(0.4*mean(deltas) + 0.2*maxDelta + 0.1*churnRatio + 0.3*volumeDelta)
}

// temporalDrift measures trend instability over the combined windows:
// confidence slope, volume slope, week-to-week confidence variance and the
// inverse of the confidence/volume correlation, weighted 40/20/20/20. The
// slopes are rescaled to comparable magnitude before weighting.
func temporalDrift(responses []types.Response, now time.Time, windowDays int) float64 {
	if len(responses) == 0 {
		return 0
	}

	// Both windows feed the trend, so the week count scales with the
	// configured window length.
	weeks := (2*windowDays + 6) / 7
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
		// Index 0 is the oldest week so slopes read forward in time.
		idx := weeks - 1 - week
		confByWeek[idx] = append(confByWeek[idx], r.Confidence)
		volumes[idx]++
	}
	if len(confByWeek) < 2 {
		return 0
	}

	weeklyConf := make([]float64, weeks)
	for i := 0; i < weeks; i++ {
		weeklyConf[i] = mean(confByWeek[i])
	}

	confSlope := math.Min(math.Abs(linearSlope(weeklyConf))*10, 1)
	volSlope := math.Min(math.Abs(linearSlope(volumes))/math.Max(mean(volumes), 1)*2, 1)
	confVariance := math.Min(variance(weeklyConf)*10, 1)
	decorrelation := clamp01((1 - pearson(weeklyConf, volumes)) / 2)

	return clamp01(0.4*confSlope + 0.2*volSlope + 0.2*confVariance + 0.2*decorrelation)
}

// classifyType folds the trailing stored results plus the current score
// into a drift-type classification.
func (e *DriftEngine) classifyType(concept, temporal, composite float64, history []types.DriftResult) types.DriftType {
	// History arrives newest first; rebuild oldest first with the current
	// score appended.
	scores := make([]float64, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		scores = append(scores, history[i].DriftScore)
	}
	scores = append(scores, composite)

	if len(scores) >= 4 {
		half := len(scores) / 2
		older := mean(scores[:half])
		recentAvg := mean(scores[half:])
		acceleration := recentAvg - older

		if acceleration > 0.3 || composite > 1.5*recentAvg {
			return types.DriftSudden
		}
		if temporal > 0.6 && concept < 0.3 {
			return types.DriftSeasonal
		}
		if recentAvg > e.cfg.Threshold && math.Abs(acceleration) <= 0.3 {
			return types.DriftGradual
		}
		return types.DriftNone
	}

	// History too short for trend analysis.
	if temporal > 0.6 && concept < 0.3 {
		return types.DriftSeasonal
	}
	return types.DriftNone
}

// driftDirection decides whether the shift is favourable: positive when at
// least two of confidence, effectiveness and alert pressure improved,
// negative when drift is substantial and they did not, else neutral.
func driftDirection(baseline, recent []types.Response, baseNotes, recentNotes []types.MemoryNote, composite float64) types.DriftDirection {
	var favourable int
	if meanConfidence(recent) > meanConfidence(baseline) {
		favourable++
	}
	if meanEffectiveness(recentNotes) > meanEffectiveness(baseNotes) {
		favourable++
	}
	if highPriorityCount(recentNotes) < highPriorityCount(baseNotes) {
		favourable++
	}

	switch {
	case favourable >= 2:
		return types.DirectionPositive
	case composite > 0.5:
		return types.DirectionNegative
	default:
		return types.DirectionNeutral
	}
}

// raiseAlert creates a drift alert for a result that crossed the
// threshold, with one recommendation per triggered sub-component.
func (e *DriftEngine) raiseAlert(ctx context.Context, result *types.DriftResult) error {
	var recommendations []string
	if result.Severity == types.SeverityCritical {
		recommendations = append(recommendations,
			"URGENT: review domain immediately, drift severity is critical")
	}
	if result.ConceptDrift >= 0.5 {
		recommendations = append(recommendations,
			"Semantic patterns have shifted; re-run pattern synthesis for this domain")
	}
	if result.DataDrift >= 0.5 {
		recommendations = append(recommendations,
			"Response statistics have shifted; verify the corpus supplier is healthy")
	}
	if result.ModelDrift >= 0.5 {
		recommendations = append(recommendations,
			"Per-model behaviour has shifted; compare model outputs side by side")
	}
	if result.TemporalDrift >= 0.5 {
		recommendations = append(recommendations,
			"Confidence trend is unstable; widen the observation window before acting")
	}

	alertType := types.AlertDriftAccelerating
	if result.Severity == types.SeverityCritical {
		alertType = types.AlertDriftDetected
	}

	alert := &types.DriftAlert{
		ID:        uuid.NewString(),
		DomainID:  result.DomainID,
		AlertType: alertType,
		Severity:  result.Severity,
		Description: fmt.Sprintf(
			"Drift score %.2f (%s, %s): concept %.2f, data %.2f, model %.2f, temporal %.2f",
			result.DriftScore, result.DriftType, result.Direction,
			result.ConceptDrift, result.DataDrift, result.ModelDrift, result.TemporalDrift,
		),
		Recommendations: recommendations,
		CreatedAt:       result.DetectedAt,
	}
	if err := e.sink.CreateAlert(ctx, alert); err != nil {
		return fmt.Errorf("engine: drift: create alert: %w", err)
	}
	return nil
}

func confidences(responses []types.Response) []float64 {
	out := make([]float64, len(responses))
	for i, r := range responses {
		out[i] = r.Confidence
	}
	return out
}

func confidenceByModel(responses []types.Response) map[string][]float64 {
	out := make(map[string][]float64)
	for _, r := range responses {
		out[r.Model] = append(out[r.Model], r.Confidence)
	}
	return out
}

func distinctModels(responses []types.Response) int {
	models := make(map[string]struct{})
	for _, r := range responses {
		models[r.Model] = struct{}{}
	}
	return len(models)
}

func meanLength(responses []types.Response) float64 {
	if len(responses) == 0 {
		return 0
	}
	var sum float64
	for _, r := range responses {
		sum += float64(len(r.Content))
	}
	return sum / float64(len(responses))
}

func meanEffectiveness(notes []types.MemoryNote) float64 {
	if len(notes) == 0 {
		return 0
	}
	var sum float64
	for _, n := range notes {
		sum += n.Effectiveness
	}
	return sum / float64(len(notes))
}

func highPriorityCount(notes []types.MemoryNote) int {
	var count int
	for _, n := range notes {
		if n.HighPriority() {
			count++
		}
	}
	return count
}
