package engine

import "strings"

// Distribution is a sentiment split over four categories. The components
// sum to 1 for any distribution produced by a TextScorer.
type Distribution struct {
	Positive float64
	Negative float64
	Neutral  float64
	Mixed    float64
}

// NeutralDistribution is the defined fallback for an empty corpus.
func NeutralDistribution() Distribution {
	return Distribution{Neutral: 1}
}

// Scale multiplies every component by w.
func (d Distribution) Scale(w float64) Distribution {
	return Distribution{
		Positive: d.Positive * w,
		Negative: d.Negative * w,
		Neutral:  d.Neutral * w,
		Mixed:    d.Mixed * w,
	}
}

// Add component-wise sums two distributions.
func (d Distribution) Add(other Distribution) Distribution {
	return Distribution{
		Positive: d.Positive + other.Positive,
		Negative: d.Negative + other.Negative,
		Neutral:  d.Neutral + other.Neutral,
		Mixed:    d.Mixed + other.Mixed,
	}
}

// Normalize rescales the distribution so its components sum to 1.
// A zero distribution normalizes to the neutral fallback.
func (d Distribution) Normalize() Distribution {
	total := d.Positive + d.Negative + d.Neutral + d.Mixed
	if total == 0 {
		return NeutralDistribution()
	}
	return d.Scale(1 / total)
}

// TextScorer maps free text to a sentiment distribution. The sentiment
// engine takes this as a strategy so the keyword lexicon can be swapped for
// a model-backed scorer without touching the composite logic.
type TextScorer interface {
	Score(text string) Distribution
}

// LexiconScorer scores text by counting hits from fixed positive and
// negative indicator word lists and mapping the hit ratio to one of four
// canned distributions.
type LexiconScorer struct {
	positive []string
	negative []string
}

// NewLexiconScorer returns a scorer with the default indicator word lists.
func NewLexiconScorer() *LexiconScorer {
	return &LexiconScorer{
		positive: []string{
			"growth", "strong", "leading", "innovative", "excellent",
			"success", "opportunity", "breakthrough", "profitable",
			"expanding", "robust", "dominant", "promising", "improving",
		},
		negative: []string{
			"decline", "weak", "struggling", "failing", "loss",
			"threat", "risk", "concern", "falling", "shrinking",
			"uncertain", "volatile", "troubled", "lagging",
		},
	}
}

// Score counts positive and negative indicator hits in text and returns a
// canned distribution based on their ratio: strongly positive when positive
// hits dominate by more than 2:1, strongly negative below 1:2, balanced
// when neither list matches, and blended otherwise.
func (s *LexiconScorer) Score(text string) Distribution {
	lower := strings.ToLower(text)

	var pos, neg int
	for _, word := range s.positive {
		pos += strings.Count(lower, word)
	}
	for _, word := range s.negative {
		neg += strings.Count(lower, word)
	}

	switch {
	case pos == 0 && neg == 0:
		return Distribution{Positive: 0.1, Negative: 0.1, Neutral: 0.6, Mixed: 0.2}
	case neg == 0 || float64(pos)/float64(neg) > 2:
		return Distribution{Positive: 0.6, Negative: 0.1, Neutral: 0.2, Mixed: 0.1}
	case pos == 0 || float64(pos)/float64(neg) < 0.5:
		return Distribution{Positive: 0.1, Negative: 0.6, Neutral: 0.2, Mixed: 0.1}
	default:
		return Distribution{Positive: 0.35, Negative: 0.35, Neutral: 0.1, Mixed: 0.2}
	}
}
