package fallback

import "math/rand/v2"

// Tier is a response pool selected by severity.
type Tier string

// Response tiers.
const (
	TierGreeting Tier = "greeting"
	TierFarewell Tier = "farewell"
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
)

// TierForScore maps a severity score to its pool: 0-3 low, 4-6 medium,
// 7-10 high.
func TierForScore(score int) Tier {
	switch {
	case score <= 3:
		return TierLow
	case score <= 6:
		return TierMedium
	default:
		return TierHigh
	}
}

// Pool returns the canned responses for a score-based tier.
func Pool(t Tier) []string {
	switch t {
	case TierMedium:
		return mediumStressResponses
	case TierHigh:
		return highStressResponses
	default:
		return lowStressResponses
	}
}

// Responder picks canned replies. It never fails and never touches the network.
type Responder struct {
	pick func(n int) int
}

// NewResponder returns a Responder that picks uniformly at random.
func NewResponder() *Responder {
	return &Responder{pick: rand.IntN}
}

// NewResponderWithPicker returns a Responder with a deterministic picker.
// pick must return a value in [0, n).
func NewResponderWithPicker(pick func(n int) int) *Responder {
	return &Responder{pick: pick}
}

// Reply is a fallback reply with the signals that produced it.
type Reply struct {
	Text  string
	Score int
	Tier  Tier
}

// Respond chooses a reply for tokens. Greetings win over farewells, which
// win over score-based selection.
func (r *Responder) Respond(score int, tokens []string) Reply {
	if containsAny(tokens, greetingWords) {
		return Reply{Text: greetingReply, Score: score, Tier: TierGreeting}
	}
	if containsAny(tokens, farewellWords) {
		return Reply{Text: farewellReply, Score: score, Tier: TierFarewell}
	}

	tier := TierForScore(score)
	pool := Pool(tier)
	idx := r.pick(len(pool))
	if idx < 0 || idx >= len(pool) {
		idx = 0
	}
	return Reply{Text: pool[idx], Score: score, Tier: tier}
}

// ReplyTo runs the full local pipeline on raw user text.
func (r *Responder) ReplyTo(text string) Reply {
	tokens := Normalize(text)
	return r.Respond(Score(tokens), tokens)
}

func containsAny(tokens []string, set map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
