package fallback

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "lowercases and strips punctuation", in: "Hello, WORLD!!!", want: []string{"hello", "world"}},
		{name: "drops stop words and short tokens", in: "I am a very tired person", want: []string{"tired", "person"}},
		{name: "contractions collapse before stop word lookup", in: "I'm so stressed", want: []string{"stressed"}},
		{name: "emoji is removed", in: "Feeling anxious 😰", want: []string{"feeling", "anxious"}},
		{name: "only punctuation", in: "?!...", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// Weights are 2, 2.5 and 3. Scores are not normalized by message length.
func TestScorePinsDocumentedWeights(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   int
	}{
		{name: "nothing", tokens: nil, want: 0},
		{name: "one stress word", tokens: []string{"stressed"}, want: 2},
		{name: "one anxiety word floors 2.5", tokens: []string{"anxious"}, want: 2},
		{name: "two anxiety words", tokens: []string{"anxious", "worried"}, want: 5},
		{name: "one depression word", tokens: []string{"hopeless"}, want: 3},
		{name: "stress plus anxiety floors 4.5", tokens: []string{"stressed", "anxious"}, want: 4},
		{name: "one of each floors 7.5", tokens: []string{"stressed", "anxious", "hopeless"}, want: 7},
		{name: "clamped at ten", tokens: []string{"hopeless", "sad", "lonely", "empty"}, want: 10},
		{name: "repeated words count each time", tokens: []string{"tired", "tired", "tired"}, want: 6},
		{name: "non keywords ignored", tokens: []string{"pizza", "weekend"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.tokens))
		})
	}
}

func TestScoreIsBounded(t *testing.T) {
	var tokens []string
	for word := range depressionKeywords {
		tokens = append(tokens, word)
	}
	for i := 0; i <= len(tokens); i++ {
		s := Score(tokens[:i])
		require.GreaterOrEqual(t, s, 0)
		require.LessOrEqual(t, s, MaxSeverity)
	}
}

func TestKeywordSetsAreDisjointAndNotStopWords(t *testing.T) {
	sets := map[string]map[string]struct{}{
		"stress":     stressKeywords,
		"anxiety":    anxietyKeywords,
		"depression": depressionKeywords,
		"greeting":   greetingWords,
		"farewell":   farewellWords,
	}
	seen := make(map[string]string)
	for name, set := range sets {
		for w := range set {
			if name == "stress" || name == "anxiety" || name == "depression" {
				if other, ok := seen[w]; ok {
					t.Errorf("%q is in both %s and %s", w, other, name)
				}
				seen[w] = name
			}
			if _, stop := stopWords[w]; stop {
				t.Errorf("%s keyword %q is also a stop word and can never match", name, w)
			}
			if len([]rune(w)) <= 1 {
				t.Errorf("%s keyword %q is too short to survive normalization", name, w)
			}
		}
	}
}

func TestTierForScore(t *testing.T) {
	for score := 0; score <= MaxSeverity; score++ {
		got := TierForScore(score)
		switch {
		case score <= 3:
			assert.Equal(t, TierLow, got, "score %d", score)
		case score <= 6:
			assert.Equal(t, TierMedium, got, "score %d", score)
		default:
			assert.Equal(t, TierHigh, got, "score %d", score)
		}
	}
}

func TestRespondGreetingBeatsFarewellBeatsScore(t *testing.T) {
	r := NewResponder()

	tokens := []string{"hello", "bye", "hopeless", "anxious", "stressed"}
	got := r.Respond(Score(tokens), tokens)
	assert.Equal(t, TierGreeting, got.Tier)
	assert.Equal(t, greetingReply, got.Text)

	tokens = []string{"bye", "hopeless", "anxious", "stressed"}
	got = r.Respond(Score(tokens), tokens)
	assert.Equal(t, TierFarewell, got.Tier)
	assert.Equal(t, farewellReply, got.Text)
}

func TestRespondPicksFromTierPool(t *testing.T) {
	calls := 0
	r := NewResponderWithPicker(func(n int) int {
		calls++
		return n - 1
	})

	got := r.Respond(8, []string{"something"})
	assert.Equal(t, TierHigh, got.Tier)
	assert.Equal(t, highStressResponses[len(highStressResponses)-1], got.Text)
	assert.Equal(t, 1, calls)
}

func TestRespondClampsBadPicker(t *testing.T) {
	r := NewResponderWithPicker(func(int) int { return 99 })
	got := r.Respond(0, nil)
	assert.Equal(t, lowStressResponses[0], got.Text)
}

func TestReplyToAlwaysReturnsText(t *testing.T) {
	r := NewResponder()
	inputs := []string{
		"",
		"   ",
		"!!!",
		"hello",
		"goodbye friend",
		"I'm feeling down today 😞",
		"Just stressed about work 📚",
		"nothing matters and I feel hopeless, empty, alone and worthless",
		string([]byte{0xff, 0xfe, 0xfd}),
	}
	for _, in := range inputs {
		got := r.ReplyTo(in)
		assert.NotEmpty(t, got.Text, "input %q", in)
		assert.True(t, got.Score >= 0 && got.Score <= MaxSeverity, "input %q", in)
	}
}

func TestReplyToAnxiousAndStressedIsHighTier(t *testing.T) {
	r := NewResponder()
	got := r.ReplyTo("I'm feeling really anxious and stressed about everything")
	assert.GreaterOrEqual(t, got.Score, 7)
	assert.Equal(t, TierHigh, got.Tier)
	assert.True(t, slices.Contains(highStressResponses, got.Text))
}
