package types_test

import (
	"testing"

	"github.com/modelmind/tensorcore/pkg/types"
)

// TestSeverityForScoreBands verifies the severity bands are contiguous with
// no overlap and no gaps across the full score range.
func TestSeverityForScoreBands(t *testing.T) {
	cases := []struct {
		score float64
		want  types.Severity
	}{
		{0.0, types.SeverityLow},
		{0.29, types.SeverityLow},
		{0.3, types.SeverityMedium},
		{0.49, types.SeverityMedium},
		{0.5, types.SeverityHigh},
		{0.69, types.SeverityHigh},
		{0.7, types.SeverityCritical},
		{1.0, types.SeverityCritical},
	}

	for _, tc := range cases {
		if got := types.SeverityForScore(tc.score); got != tc.want {
			t.Errorf("SeverityForScore(%f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

// TestSeverityMonotonic sweeps the score range and verifies severity never
// decreases as the score increases.
func TestSeverityMonotonic(t *testing.T) {
	rank := map[types.Severity]int{
		types.SeverityLow:      0,
		types.SeverityMedium:   1,
		types.SeverityHigh:     2,
		types.SeverityCritical: 3,
	}

	prev := -1
	for score := 0.0; score <= 1.0; score += 0.01 {
		r := rank[types.SeverityForScore(score)]
		if r < prev {
			t.Fatalf("severity decreased at score %f", score)
		}
		prev = r
	}
}

// TestTensorRecordValidate verifies the bounded-score invariant is enforced
// before persistence.
func TestTensorRecordValidate(t *testing.T) {
	cases := []struct {
		name    string
		record  types.TensorRecord
		wantErr bool
	}{
		{
			name: "valid",
			record: types.TensorRecord{
				DomainID:   "dom-1",
				TensorType: types.TensorMemory,
				Composite:  0.5,
				SubScores:  map[string]float64{types.ScoreRecency: 1.0},
			},
		},
		{
			name: "composite_out_of_range",
			record: types.TensorRecord{
				DomainID:   "dom-1",
				TensorType: types.TensorMemory,
				Composite:  1.2,
			},
			wantErr: true,
		},
		{
			name: "negative_sub_score",
			record: types.TensorRecord{
				DomainID:   "dom-1",
				TensorType: types.TensorGrounding,
				Composite:  0.4,
				SubScores:  map[string]float64{types.ScoreFactualAccuracy: -0.1},
			},
			wantErr: true,
		},
		{
			name: "unknown_tensor_type",
			record: types.TensorRecord{
				DomainID:   "dom-1",
				TensorType: "velocity",
				Composite:  0.4,
			},
			wantErr: true,
		},
		{
			name: "missing_domain",
			record: types.TensorRecord{
				TensorType: types.TensorSentiment,
				Composite:  0.4,
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.record.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

// TestModelAgreementNormalizePair verifies the unordered pair maps to one key.
func TestModelAgreementNormalizePair(t *testing.T) {
	a := types.ModelAgreement{ModelA: "gpt-4", ModelB: "claude"}
	b := types.ModelAgreement{ModelA: "claude", ModelB: "gpt-4"}

	a.NormalizePair()
	b.NormalizePair()

	if a.ModelA != b.ModelA || a.ModelB != b.ModelB {
		t.Errorf("pair normalization diverged: %+v vs %+v", a, b)
	}
}
