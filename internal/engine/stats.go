// Package engine implements the five scoring engines that reduce a domain's
// response corpus to bounded numeric signals: memory, sentiment, grounding,
// drift and consensus.
//
// Every engine follows the same shape: pull the corpus through a
// storage.ResponseStore, aggregate it into named sub-components, combine the
// sub-components into a composite in [0,1], classify the composite, and write
// the result through a storage.ScoreSink. Engines are stateless between
// invocations; history-dependent classification reads trailing records from
// the sink per call.
package engine

import "math"

// clamp01 bounds v to [0,1]. All scores in the system pass through here
// before being persisted.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// mean returns the arithmetic mean of values, 0 for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// variance returns the population variance of values, 0 when fewer than two.
func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

// stdDev returns the population standard deviation of values.
func stdDev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

// inverseVariance maps a variance to a stability score in (0,1]: zero
// variance scores 1, large variance approaches 0.
func inverseVariance(values []float64) float64 {
	return 1 / (1 + variance(values))
}

// logistic squashes v into (0,1) with the given center and steepness.
// Steeper curves sharpen separation around the center.
func logistic(v, center, steepness float64) float64 {
	return 1 / (1 + math.Exp(-steepness*(v-center)))
}

// safeRatio divides num by den, falling back to neutral 0.5 when den is
// zero. Partial corpora degrade gracefully instead of raising.
func safeRatio(num, den float64) float64 {
	if den == 0 {
		return 0.5
	}
	return num / den
}

// cappedRatio divides num by den and clamps to [0,1], returning 0 when den
// is zero. Used for "count capped at N" sub-components.
func cappedRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

// linearSlope fits y = a + b*x by least squares over equally indexed points
// and returns b. Returns 0 when fewer than two points.
func linearSlope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / den
}

// pearson returns the Pearson correlation coefficient between xs and ys.
// Returns 0 when the series are too short or either has zero variance.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var cov, vx, vy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}

// zScore returns how many standard deviations v lies from the mean of the
// series, and whether the score is defined (false when stddev is zero).
func zScore(v float64, series []float64) (float64, bool) {
	sd := stdDev(series)
	if sd == 0 {
		return 0, false
	}
	return (v - mean(series)) / sd, true
}
