package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 4,
		Delay: func(_ error, retry int) (time.Duration, bool) {
			return time.Duration(retry) * time.Second, true
		},
		Sleep: noSleep(&delays),
	}

	calls := 0
	v, err := Do(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errFlaky
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDoStopsAtCeiling(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 4,
		Delay:       func(error, int) (time.Duration, bool) { return time.Millisecond, true },
		Sleep:       noSleep(&delays),
	}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 4, calls)
	assert.Len(t, delays, 3)
}

func TestDoStopsWhenDelayDeclines(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		MaxAttempts: 4,
		Delay:       func(error, int) (time.Duration, bool) { return 0, false },
		Sleep:       noSleep(&delays),
	}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoStopsWhenSleepIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{
		MaxAttempts: 4,
		Delay:       func(error, int) (time.Duration, bool) { return time.Hour, true },
	}

	calls := 0
	_, err := Do(ctx, p, func(context.Context, int) (int, error) {
		calls++
		return 0, errFlaky
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestExponential(t *testing.T) {
	base := time.Second
	capDelay := 10 * time.Second

	assert.Equal(t, time.Second, Exponential(base, capDelay, 1))
	assert.Equal(t, 2*time.Second, Exponential(base, capDelay, 2))
	assert.Equal(t, 4*time.Second, Exponential(base, capDelay, 3))
	assert.Equal(t, 8*time.Second, Exponential(base, capDelay, 4))
	assert.Equal(t, capDelay, Exponential(base, capDelay, 5))
	assert.Equal(t, capDelay, Exponential(base, capDelay, 60))
}

func TestJitterBounds(t *testing.T) {
	d := 4 * time.Second
	capDelay := 10 * time.Second

	lo := Jitter(d, 0.3, capDelay, func() float64 { return 0 })
	hi := Jitter(d, 0.3, capDelay, func() float64 { return 0.999999 })
	mid := Jitter(d, 0.3, capDelay, func() float64 { return 0.5 })

	assert.InDelta(t, float64(2800*time.Millisecond), float64(lo), float64(time.Millisecond))
	assert.InDelta(t, float64(5200*time.Millisecond), float64(hi), float64(time.Millisecond))
	assert.Equal(t, d, mid)

	for range 1000 {
		got := Jitter(8*time.Second, 0.3, capDelay, nil)
		require.GreaterOrEqual(t, got, 5600*time.Millisecond)
		require.LessOrEqual(t, got, capDelay)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
