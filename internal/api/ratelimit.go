package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter implements a per-user token bucket.
// The key is userID only, not userID:sessionID, so clients cannot bypass
// throttling by rotating session IDs.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastEvict time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit requests per window per key, with bursts up to
// limit. A non-positive limit disables throttling.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Inf,
		idle:     window,
		now:      time.Now,
	}
	if limit > 0 && window > 0 {
		rl.limit = rate.Limit(float64(limit) / window.Seconds())
		rl.burst = limit
	}
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit == rate.Inf {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictLocked(now)

	e, ok := r.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// evictLocked drops keys idle for longer than the window, at most once per
// window. An idle key's bucket is full again by then.
func (r *RateLimiter) evictLocked(now time.Time) {
	if now.Sub(r.lastEvict) < r.idle {
		return
	}
	r.lastEvict = now
	for key, e := range r.limiters {
		if now.Sub(e.lastSeen) > r.idle {
			delete(r.limiters, key)
		}
	}
}

// Len returns the number of tracked keys.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}
