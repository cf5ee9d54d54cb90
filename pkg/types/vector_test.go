package types_test

import (
	"math"
	"testing"

	"github.com/modelmind/tensorcore/pkg/types"
)

// TestZeroVectorLength verifies the fallback vector has the requested dimension.
func TestZeroVectorLength(t *testing.T) {
	vec := types.ZeroVector(768)
	if len(vec) != 768 {
		t.Fatalf("expected dimension 768, got %d", len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("component %d is %f, want 0", i, v)
		}
	}
}

// TestWeightedMeanVector verifies weighting and dimension filtering.
func TestWeightedMeanVector(t *testing.T) {
	vectors := [][]float64{
		{1, 0},
		{0, 1},
		{5, 5, 5}, // wrong dimension, skipped
	}
	weights := []float64{3, 1, 100}

	mean := types.WeightedMeanVector(vectors, weights, 2)

	if math.Abs(mean[0]-0.75) > 1e-9 || math.Abs(mean[1]-0.25) > 1e-9 {
		t.Errorf("expected [0.75 0.25], got %v", mean)
	}
}

// TestWeightedMeanVectorNoContributors verifies the zero fallback.
func TestWeightedMeanVectorNoContributors(t *testing.T) {
	cases := []struct {
		name    string
		vectors [][]float64
		weights []float64
	}{
		{"empty_input", nil, nil},
		{"zero_weights", [][]float64{{1, 2}}, []float64{0}},
		{"negative_weights", [][]float64{{1, 2}}, []float64{-1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mean := types.WeightedMeanVector(tc.vectors, tc.weights, 2)
			if mean[0] != 0 || mean[1] != 0 {
				t.Errorf("expected zero vector, got %v", mean)
			}
		})
	}
}

// TestL2Normalize verifies unit length after normalization.
func TestL2Normalize(t *testing.T) {
	vec := types.L2Normalize([]float64{3, 4})
	if math.Abs(types.Magnitude(vec)-1.0) > 1e-9 {
		t.Errorf("expected unit magnitude, got %f", types.Magnitude(vec))
	}
}

// TestL2NormalizeZeroVector verifies the zero vector passes through unchanged.
func TestL2NormalizeZeroVector(t *testing.T) {
	vec := types.L2Normalize(types.ZeroVector(4))
	if types.Magnitude(vec) != 0 {
		t.Errorf("expected zero vector to stay zero, got %v", vec)
	}
}
