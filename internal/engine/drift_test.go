package engine

import (
	"context"
	"testing"
	"time"

	"github.com/modelmind/tensorcore/pkg/types"
)

func driftWindowResponses(domainID string, now time.Time, baselineConf, recentConf float64) []types.Response {
	var out []types.Response
	id := 0
	for day := 1; day <= 55; day += 5 {
		conf := recentConf
		if day > 30 {
			conf = baselineConf
		}
		out = append(out, types.Response{
			ID:          string(rune('a' + id)),
			DomainID:    domainID,
			Model:       "gpt",
			PromptType:  "overview",
			Content:     "analysis of the subject",
			Fingerprint: "fp",
			Confidence:  conf,
			CreatedAt:   now.AddDate(0, 0, -day),
		})
		id++
	}
	return out
}

func TestDriftDetectEmptyDomain(t *testing.T) {
	store := newMemStore()
	eng := NewDriftEngine(store, store, DriftConfig{})
	eng.now = fixedNow

	result, err := eng.Detect(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if result.DriftScore != 0 {
		t.Errorf("drift score = %f, want 0 for an empty domain", result.DriftScore)
	}
	if result.DriftType != types.DriftNone {
		t.Errorf("drift type = %q, want %q", result.DriftType, types.DriftNone)
	}
	if result.Severity != types.SeverityLow {
		t.Errorf("severity = %q, want %q", result.Severity, types.SeverityLow)
	}
	if len(store.alerts) != 0 {
		t.Errorf("alerts = %d, want none below the threshold", len(store.alerts))
	}
	if len(store.drift["dom-1"]) != 1 {
		t.Errorf("stored results = %d, want 1", len(store.drift["dom-1"]))
	}
}

func TestDriftDetectConfidenceDropRaisesAlert(t *testing.T) {
	store := newMemStore()
	store.responses["dom-1"] = driftWindowResponses("dom-1", testNow, 0.9, 0.4)
	store.notes["dom-1"] = []types.MemoryNote{
		{DomainID: "dom-1", Patterns: []string{"legacy_position"}, Confidence: 0.9,
			CreatedAt: testNow.AddDate(0, 0, -45)},
		{DomainID: "dom-1", Patterns: []string{"new_direction"}, Confidence: 0.9,
			CreatedAt: testNow.AddDate(0, 0, -5)},
	}

	eng := NewDriftEngine(store, store, DriftConfig{})
	eng.now = fixedNow

	result, err := eng.Detect(context.Background(), "dom-1")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if result.DriftScore < 0.3 {
		t.Errorf("drift score = %f, want at least the 0.3 threshold", result.DriftScore)
	}
	if result.ConceptDrift == 0 {
		t.Error("concept drift should register replaced patterns")
	}
	if result.DataDrift == 0 {
		t.Error("data drift should register the confidence drop")
	}
	if result.Severity != types.SeverityForScore(result.DriftScore) {
		t.Errorf("severity %q inconsistent with score %f", result.Severity, result.DriftScore)
	}

	if len(store.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(store.alerts))
	}
	alert := store.alerts[0]
	if alert.Severity != result.Severity {
		t.Errorf("alert severity %q, want %q", alert.Severity, result.Severity)
	}
	if len(alert.Recommendations) == 0 {
		t.Error("alert should carry at least one recommendation")
	}
}

func TestConceptDriftPatternTurnover(t *testing.T) {
	base := []types.MemoryNote{
		{Patterns: []string{"a", "b"}, Confidence: 0.8},
	}
	recent := []types.MemoryNote{
		{Patterns: []string{"c", "d"}, Confidence: 0.8},
	}
	got := conceptDrift(base, recent)
	// Full turnover: both the disappeared and appeared ratios saturate.
	if got != 0.5 {
		t.Errorf("conceptDrift = %f, want 0.5 for full pattern turnover", got)
	}
	if conceptDrift(nil, nil) != 0 {
		t.Error("conceptDrift without patterns should be 0")
	}
	if conceptDrift(base, base) != 0 {
		t.Error("conceptDrift of identical windows should be 0")
	}
}

func TestDataDriftConfidenceShift(t *testing.T) {
	baseline := []types.Response{
		{Model: "gpt", Content: "aaaa", Confidence: 0.9},
		{Model: "gpt", Content: "aaaa", Confidence: 0.9},
	}
	recent := []types.Response{
		{Model: "gpt", Content: "aaaa", Confidence: 0.4},
		{Model: "gpt", Content: "aaaa", Confidence: 0.4},
	}
	got := dataDrift(baseline, recent)
	if got <= 0 {
		t.Errorf("dataDrift = %f, want positive for a confidence shift", got)
	}
	if same := dataDrift(baseline, baseline); same != 0 {
		t.Errorf("dataDrift of identical windows = %f, want 0", same)
	}
	if dataDrift(nil, recent) != 0 {
		t.Error("dataDrift with an empty window should be 0")
	}
}

func TestModelDriftChurn(t *testing.T) {
	baseline := []types.Response{
		{Model: "gpt", Confidence: 0.8},
		{Model: "claude", Confidence: 0.8},
	}
	recent := []types.Response{
		{Model: "gpt", Confidence: 0.8},
		{Model: "gemini", Confidence: 0.8},
	}
	got := modelDrift(baseline, recent)
	if got <= 0 {
		t.Errorf("modelDrift = %f, want positive when models churn", got)
	}
	if same := modelDrift(baseline, baseline); same != 0 {
		t.Errorf("modelDrift of identical windows = %f, want 0", same)
	}
}

func TestClassifyTypeBands(t *testing.T) {
	eng := NewDriftEngine(newMemStore(), newMemStore(), DriftConfig{})

	history := func(scores ...float64) []types.DriftResult {
		// Stored newest first.
		out := make([]types.DriftResult, len(scores))
		for i, s := range scores {
			out[len(scores)-1-i] = types.DriftResult{DriftScore: s}
		}
		return out
	}

	cases := []struct {
		name      string
		concept   float64
		temporal  float64
		composite float64
		history   []types.DriftResult
		want      types.DriftType
	}{
		{"short_history_quiet", 0.1, 0.1, 0.1, nil, types.DriftNone},
		{"short_history_seasonal", 0.1, 0.7, 0.4, nil, types.DriftSeasonal},
		{"sudden_acceleration", 0.2, 0.2, 0.9, history(0.1, 0.1, 0.1, 0.1, 0.1), types.DriftSudden},
		{"gradual_sustained", 0.4, 0.2, 0.45, history(0.4, 0.42, 0.44, 0.43, 0.45), types.DriftGradual},
		{"seasonal_with_history", 0.1, 0.7, 0.2, history(0.2, 0.2, 0.2, 0.2), types.DriftSeasonal},
		{"quiet_with_history", 0.1, 0.1, 0.1, history(0.1, 0.12, 0.1, 0.11), types.DriftNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := eng.classifyType(tc.concept, tc.temporal, tc.composite, tc.history)
			if got != tc.want {
				t.Errorf("classifyType = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDriftDirection(t *testing.T) {
	better := []types.Response{{Confidence: 0.9}}
	worse := []types.Response{{Confidence: 0.4}}
	goodNotes := []types.MemoryNote{{Effectiveness: 0.8}}
	badNotes := []types.MemoryNote{{Effectiveness: 0.2, AlertPriority: types.PriorityHigh}}

	if got := driftDirection(worse, better, badNotes, goodNotes, 0.6); got != types.DirectionPositive {
		t.Errorf("improving signals = %q, want positive", got)
	}
	if got := driftDirection(better, worse, goodNotes, badNotes, 0.6); got != types.DirectionNegative {
		t.Errorf("degrading signals with high drift = %q, want negative", got)
	}
	if got := driftDirection(better, worse, goodNotes, badNotes, 0.2); got != types.DirectionNeutral {
		t.Errorf("degrading signals with low drift = %q, want neutral", got)
	}
}

func TestDriftCriticalAlertIsUrgent(t *testing.T) {
	store := newMemStore()
	eng := NewDriftEngine(store, store, DriftConfig{})
	eng.now = fixedNow

	result := &types.DriftResult{
		ID:           "r1",
		DomainID:     "dom-1",
		DriftScore:   0.85,
		DriftType:    types.DriftSudden,
		Direction:    types.DirectionNegative,
		ConceptDrift: 0.9,
		Severity:     types.SeverityCritical,
		DetectedAt:   testNow,
	}
	if err := eng.raiseAlert(context.Background(), result); err != nil {
		t.Fatalf("raiseAlert: %v", err)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(store.alerts))
	}
	alert := store.alerts[0]
	if alert.AlertType != types.AlertDriftDetected {
		t.Errorf("alert type = %q, want %q for critical severity", alert.AlertType, types.AlertDriftDetected)
	}
	if len(alert.Recommendations) < 2 {
		t.Fatalf("recommendations = %d, want urgent line plus component line", len(alert.Recommendations))
	}
	if alert.Recommendations[0][:6] != "URGENT" {
		t.Errorf("first recommendation %q should be the urgent line", alert.Recommendations[0])
	}
}

func TestTemporalDriftHonorsConfiguredWindow(t *testing.T) {
	build := func(collapse bool) []types.Response {
		var out []types.Response
		for day := 1; day < 126; day += 7 {
			conf := 0.8
			if collapse && day >= 64 {
				conf = 0.1
			}
			out = append(out, types.Response{
				Model:      "gpt",
				Confidence: conf,
				CreatedAt:  testNow.AddDate(0, 0, -day),
			})
		}
		return out
	}
	flat, collapsed := build(false), build(true)

	// A 30-day window pair only reaches nine weeks back, so a confidence
	// collapse confined to older weeks is out of range for it.
	if got, want := temporalDrift(collapsed, testNow, 30), temporalDrift(flat, testNow, 30); got != want {
		t.Errorf("30-day window = %f, want %f (collapse lies outside both windows)", got, want)
	}

	// A 60-day window pair covers the collapsed weeks and must react.
	if got, flat60 := temporalDrift(collapsed, testNow, 60), temporalDrift(flat, testNow, 60); got <= flat60 {
		t.Errorf("60-day window = %f, want above the flat baseline %f", got, flat60)
	}
}
