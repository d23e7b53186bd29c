package orchestrator

import (
	"math"
	"sync"
	"time"

	"github.com/ashureev/chatbuddy/internal/config"
)

// Backoff gates whether a remote attempt is made at all. After a failure the
// remote path stays closed for Initial*2^failures (capped at Max); the first
// message after the window is let through.
type Backoff struct {
	mu          sync.Mutex
	cfg         config.BackoffConfig
	now         func() time.Time
	available   bool
	failures    int
	lastFailure time.Time
}

// BackoffState is a snapshot of a Backoff.
type BackoffState struct {
	Available           bool      `json:"available"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	RetryAt             time.Time `json:"retry_at,omitzero"`
}

// NewBackoff creates an open Backoff.
func NewBackoff(cfg config.BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg, now: time.Now, available: true}
}

// Allow reports whether a remote attempt should be made now.
func (b *Backoff) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.available {
		return true
	}
	if b.now().Sub(b.lastFailure) > b.windowLocked() {
		b.available = true
		return true
	}
	return false
}

// Success closes the failure streak.
func (b *Backoff) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = true
	b.failures = 0
}

// Failure records a failed remote attempt and opens a new window.
func (b *Backoff) Failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = false
	b.lastFailure = b.now()
	b.failures++
	return b.windowLocked()
}

// Window is the current skip window.
func (b *Backoff) Window() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.windowLocked()
}

// State returns a snapshot.
func (b *Backoff) State() BackoffState {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BackoffState{
		Available:           b.available,
		ConsecutiveFailures: b.failures,
		LastFailure:         b.lastFailure,
	}
	if !b.available {
		s.RetryAt = b.lastFailure.Add(b.windowLocked())
	}
	return s
}

func (b *Backoff) windowLocked() time.Duration {
	w := float64(b.cfg.Initial) * math.Pow(2, float64(b.failures))
	if w > float64(b.cfg.Max) {
		return b.cfg.Max
	}
	return time.Duration(w)
}
