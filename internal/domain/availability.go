package domain

import "time"

// AvailabilityStatus is the tri-state health of the remote model endpoint.
type AvailabilityStatus string

// Availability states.
const (
	StatusOnline     AvailabilityStatus = "online"
	StatusConnecting AvailabilityStatus = "connecting"
	StatusOffline    AvailabilityStatus = "offline"
)

// AvailabilityState is a snapshot of the monitor's view of the endpoint.
type AvailabilityState struct {
	Status              AvailabilityStatus `json:"status"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	LastFailure         time.Time          `json:"last_failure,omitzero"`
	LastProbe           time.Time          `json:"last_probe,omitzero"`
}

// ReconnectOutcome is the user-facing result of a manual reconnect.
type ReconnectOutcome string

// Reconnect outcomes.
const (
	ReconnectRestored         ReconnectOutcome = "restored"
	ReconnectStillUnavailable ReconnectOutcome = "still_unavailable"
	ReconnectTimedOut         ReconnectOutcome = "timed_out"
)

// Mood is a coarse sentiment label for a single message.
type Mood string

// Moods, from worst to best.
const (
	MoodVerySad  Mood = "very_sad"
	MoodSad      Mood = "sad"
	MoodNeutral  Mood = "neutral"
	MoodGood     Mood = "good"
	MoodVeryGood Mood = "very_good"
)

// Moods lists all mood labels. very_sad precedes sad so that substring
// matching picks the more specific label first.
func Moods() []Mood {
	return []Mood{MoodVerySad, MoodSad, MoodNeutral, MoodVeryGood, MoodGood}
}

// Label returns the friendly wording used by mood suggestions.
func (m Mood) Label() string {
	switch m {
	case MoodVerySad:
		return "not vibing"
	case MoodSad:
		return "down"
	case MoodGood:
		return "pretty good"
	case MoodVeryGood:
		return "awesome"
	default:
		return "neutral"
	}
}
