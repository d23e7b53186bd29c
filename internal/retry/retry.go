// Package retry runs an operation under a bounded attempt ceiling with
// caller-supplied delay selection.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy controls a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay decides whether err is worth another attempt and how long to wait
	// first. retry is 1 for the wait before the second attempt.
	Delay func(err error, retry int) (time.Duration, bool)

	// Sleep waits for d or until ctx is done. Defaults to Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, Delay declines, or MaxAttempts is reached.
// The last error from fn is returned unchanged.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts || p.Delay == nil {
			break
		}
		delay, ok := p.Delay(err, attempt)
		if !ok {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			break
		}
	}
	return zero, lastErr
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Exponential returns base*2^(retry-1), capped at maxDelay.
func Exponential(base, maxDelay time.Duration, retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := float64(base) * math.Pow(2, float64(retry-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Jitter spreads d by up to ±frac of itself and clamps the result to
// [0, maxDelay]. rnd returns a value in [0, 1); nil uses math/rand/v2.
func Jitter(d time.Duration, frac float64, maxDelay time.Duration, rnd func() float64) time.Duration {
	if rnd == nil {
		rnd = rand.Float64
	}
	spread := float64(d) * frac * (2*rnd() - 1)
	out := time.Duration(float64(d) + spread)
	if out < 0 {
		out = 0
	}
	if maxDelay > 0 && out > maxDelay {
		out = maxDelay
	}
	return out
}
