package types

import "math"

// Vector helpers for the fixed-dimension embedding space. Every tensor in
// the system shares one embedding dimension; engines fall back to the
// all-zero vector when a domain has no embeddings yet.

// ZeroVector returns the all-zero vector of the given dimension.
// This is the defined fallback for domains without embeddings, not an error.
func ZeroVector(dim int) []float64 {
	return make([]float64, dim)
}

// WeightedMeanVector computes the weighted mean of the given vectors.
// Vectors whose length differs from dim are skipped, as are non-positive
// weights. Returns the all-zero vector when nothing contributes.
func WeightedMeanVector(vectors [][]float64, weights []float64, dim int) []float64 {
	mean := ZeroVector(dim)
	var total float64

	for i, vec := range vectors {
		if len(vec) != dim || i >= len(weights) {
			continue
		}
		w := weights[i]
		if w <= 0 {
			continue
		}
		for j, v := range vec {
			mean[j] += v * w
		}
		total += w
	}

	if total == 0 {
		return ZeroVector(dim)
	}
	for j := range mean {
		mean[j] /= total
	}
	return mean
}

// ScaleVector multiplies every component of vec by factor, in place,
// and returns vec for chaining.
func ScaleVector(vec []float64, factor float64) []float64 {
	for i := range vec {
		vec[i] *= factor
	}
	return vec
}

// Magnitude returns the Euclidean norm of vec.
func Magnitude(vec []float64) float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// L2Normalize scales vec to unit length, in place, and returns vec.
// The all-zero vector is returned unchanged.
func L2Normalize(vec []float64) []float64 {
	mag := Magnitude(vec)
	if mag == 0 {
		return vec
	}
	return ScaleVector(vec, 1/mag)
}
