package availability

import "github.com/ashureev/chatbuddy/internal/domain"

// maintenanceThreshold is the failure count past which the banner suggests
// planned downtime.
const maintenanceThreshold = 10

// ReconnectingMessage is shown when a manual reconnect starts.
const ReconnectingMessage = "Trying to reconnect to the server... 🔄"

// ReconnectMessage is the notice text for a reconnect outcome.
func ReconnectMessage(outcome domain.ReconnectOutcome) string {
	switch outcome {
	case domain.ReconnectRestored:
		return "Connection restored! I'm back online and ready to chat! 🧠✨"
	case domain.ReconnectTimedOut:
		return "The server is taking too long to respond. I'll keep using my backup brain for now. 🕒"
	default:
		return "Still having trouble connecting to the server. I'll continue using my backup mode for now. 🧩"
	}
}

// NoticeKindFor maps a reconnect outcome to its notice kind.
func NoticeKindFor(outcome domain.ReconnectOutcome) domain.NoticeKind {
	switch outcome {
	case domain.ReconnectRestored:
		return domain.NoticeRestored
	case domain.ReconnectTimedOut:
		return domain.NoticeTimedOut
	default:
		return domain.NoticeStillUnavailable
	}
}

// Banner is the status strip shown above the conversation.
type Banner struct {
	Status     domain.AvailabilityStatus `json:"status"`
	Show       bool                      `json:"show_banner"`
	Text       string                    `json:"banner,omitempty"`
	StatusLine string                    `json:"status_line"`
	Failures   int                       `json:"consecutive_failures"`
}

// BannerFor renders the banner for a state.
func BannerFor(s domain.AvailabilityState) Banner {
	b := Banner{Status: s.Status, Failures: s.ConsecutiveFailures}
	switch s.Status {
	case domain.StatusConnecting:
		b.Show = true
		b.Text = "Reconnecting to the server..."
		b.StatusLine = "Connecting..."
	case domain.StatusOffline:
		b.Show = true
		b.StatusLine = "Using backup mode 🧠"
		if s.ConsecutiveFailures > maintenanceThreshold {
			b.Text = "The server might be down for maintenance. Using backup mode for now."
		} else {
			b.Text = "I'm using my backup brain! Tap to try reconnecting."
		}
	default:
		b.StatusLine = "Online and ready to chat ✨"
	}
	return b
}
