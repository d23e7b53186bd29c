package gemini

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/chatbuddy/internal/domain"
)

// ErrMissingAPIKey is wrapped by every call made without an API key.
var ErrMissingAPIKey = errors.New("gemini API key not configured")

// Content is one entry of the contents array.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a text fragment of a Content.
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig holds sampling parameters.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// Request is the generateContent request body.
type Request struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

// Response is the subset of the generateContent response we read.
type Response struct {
	Candidates []Candidate `json:"candidates"`
	Error      *APIError   `json:"error,omitempty"`
}

// Candidate is one completion.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// APIError is the error object the endpoint returns alongside non-2xx codes.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// RemoteError is a classified failure of a remote call. Kind is one of
// transient, rate_limited, request_rejected or malformed_response.
// HTTPStatus is zero for network-level failures.
type RemoteError struct {
	Kind       domain.ErrorKind
	HTTPStatus int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("gemini %s (status %d): %v", e.Kind, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("gemini %s: %v", e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// KindForStatus classifies a non-2xx HTTP status.
func KindForStatus(status int) domain.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrorKindRateLimited
	case status >= 500:
		return domain.ErrorKindTransient
	default:
		return domain.ErrorKindRequestRejected
	}
}

// Classify maps any error from this package to the kind reported in a reply
// envelope. A transient 503 is reported as service_unavailable.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindNone
	}
	var re *RemoteError
	if !errors.As(err, &re) {
		return domain.ErrorKindTransient
	}
	if re.Kind == domain.ErrorKindTransient && re.HTTPStatus == http.StatusServiceUnavailable {
		return domain.ErrorKindServiceUnavailable
	}
	return re.Kind
}

// IsServiceUnavailable reports whether err is a remote 503.
func IsServiceUnavailable(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.HTTPStatus == http.StatusServiceUnavailable
}
