package domain

import "time"

// Role is the speaker of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user (or the seed instruction).
	RoleUser Role = "user"
	// RoleModel marks a turn produced by the remote model (or the seed greeting).
	RoleModel Role = "model"
)

// Turn is a single entry of a conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ErrorKind classifies why a reply did not come from the remote model.
type ErrorKind string

// Error kinds surfaced in envelopes.
const (
	ErrorKindNone               ErrorKind = ""
	ErrorKindTransient          ErrorKind = "transient"
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrorKindRateLimited        ErrorKind = "rate_limited"
	ErrorKindRequestRejected    ErrorKind = "request_rejected"
	ErrorKindMalformedResponse  ErrorKind = "malformed_response"
	ErrorKindBackoff            ErrorKind = "backoff_window"
)

// Envelope is the uniform result of handling one user message.
type Envelope struct {
	Text          string    `json:"text"`
	UsingFallback bool      `json:"using_fallback"`
	ErrorType     ErrorKind `json:"error_type,omitempty"`
}

// NoticeKind names a system notice shown in the conversation stream.
type NoticeKind string

// Notice kinds.
const (
	NoticeReconnecting       NoticeKind = "reconnecting"
	NoticeRestored           NoticeKind = "restored"
	NoticeStillUnavailable   NoticeKind = "still_unavailable"
	NoticeTimedOut           NoticeKind = "timed_out"
	NoticeFirstFailure       NoticeKind = "first_failure"
	NoticeServiceUnavailable NoticeKind = "service_unavailable"
	NoticeStillDown          NoticeKind = "still_down"
)

// Notice is an informational message that is displayed like a bot message
// but never becomes part of the model context.
type Notice struct {
	ID        string     `json:"id"`
	Kind      NoticeKind `json:"kind"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
}
