package fallback

import "math"

// MaxSeverity is the upper bound of a severity score.
const MaxSeverity = 10

// Keyword weights. Scores are not normalized by message length.
const (
	stressWeight     = 2.0
	anxietyWeight    = 2.5
	depressionWeight = 3.0
)

// KeywordCounts holds per-category keyword hits for one message.
type KeywordCounts struct {
	Stress     int
	Anxiety    int
	Depression int
}

// CountKeywords tallies keyword hits across the three categories.
func CountKeywords(tokens []string) KeywordCounts {
	var c KeywordCounts
	for _, t := range tokens {
		if _, ok := stressKeywords[t]; ok {
			c.Stress++
		}
		if _, ok := anxietyKeywords[t]; ok {
			c.Anxiety++
		}
		if _, ok := depressionKeywords[t]; ok {
			c.Depression++
		}
	}
	return c
}

// Score returns the weighted severity of tokens, floored and clamped to
// [0, MaxSeverity].
func Score(tokens []string) int {
	c := CountKeywords(tokens)
	raw := float64(c.Stress)*stressWeight +
		float64(c.Anxiety)*anxietyWeight +
		float64(c.Depression)*depressionWeight
	score := int(math.Floor(raw))
	if score > MaxSeverity {
		return MaxSeverity
	}
	return score
}
