package chat

import (
	"time"

	"github.com/ashureev/chatbuddy/internal/availability"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/google/uuid"
)

// Failure notice copy.
const (
	firstFailureText       = "I'm having trouble connecting to my main brain right now, so I'm switching to backup mode. I'm still here for you! 💙"
	serviceUnavailableText = "Looks like my cloud brain is taking a short break. I'll use my backup mode until it's back! 🧠💤"
	stillDownText          = "I'm still having trouble connecting to my main brain. No worries though - my backup mode works great too! 🧠💫"
)

// stillDownEvery is how many consecutive fallback replies pass between
// repeated still-down notices.
const stillDownEvery = 5

func newNotice(kind domain.NoticeKind, text string, now time.Time) domain.Notice {
	return domain.Notice{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: now,
	}
}

// failureNotice returns the notice owed after the n-th consecutive fallback
// reply, if any.
func failureNotice(n int, kind domain.ErrorKind, now time.Time) (domain.Notice, bool) {
	switch {
	case n == 1 && kind == domain.ErrorKindServiceUnavailable:
		return newNotice(domain.NoticeServiceUnavailable, serviceUnavailableText, now), true
	case n == 1:
		return newNotice(domain.NoticeFirstFailure, firstFailureText, now), true
	case n > 0 && n%stillDownEvery == 0:
		return newNotice(domain.NoticeStillDown, stillDownText, now), true
	default:
		return domain.Notice{}, false
	}
}

func reconnectNotice(outcome domain.ReconnectOutcome, now time.Time) domain.Notice {
	return newNotice(availability.NoticeKindFor(outcome), availability.ReconnectMessage(outcome), now)
}
