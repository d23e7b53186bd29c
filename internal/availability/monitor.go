// Package availability tracks the health of the remote model endpoint with
// spaced probes, a tri-state status and manual reconnects.
package availability

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/gemini"
	"github.com/ashureev/chatbuddy/internal/retry"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const probeKey = "probe"

// Prober issues a single lightweight request against the remote endpoint.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor owns the availability state. Probe results, manual reconnects and
// observed chat outcomes all update it under one mutex.
type Monitor struct {
	prober  Prober
	cfg     config.AvailabilityConfig
	limiter *rate.Limiter
	group   singleflight.Group
	logger  *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64

	mu      sync.Mutex
	state   domain.AvailabilityState
	subs    map[int]func(domain.AvailabilityState)
	nextSub int
}

// NewMonitor creates a Monitor that starts out online.
func NewMonitor(prober Prober, cfg config.AvailabilityConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:  prober,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinProbeInterval), 1),
		logger:  logger.With("component", "availability"),
		now:     time.Now,
		sleep:   retry.Sleep,
		rand:    rand.Float64,
		state:   domain.AvailabilityState{Status: domain.StatusOnline},
		subs:    make(map[int]func(domain.AvailabilityState)),
	}
}

// State returns a snapshot of the current state.
func (m *Monitor) State() domain.AvailabilityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn to be called after every state change. The returned
// func removes the subscription. fn runs on the updating goroutine.
func (m *Monitor) Subscribe(fn func(domain.AvailabilityState)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Check probes the endpoint unless the previous probe was less than
// MinProbeInterval ago, in which case the current state is returned as is.
// Concurrent callers share a single probe.
func (m *Monitor) Check(ctx context.Context) domain.AvailabilityState {
	if !m.limiter.AllowN(m.now(), 1) {
		m.logger.Debug("probe skipped, too soon since last probe")
		return m.State()
	}
	v, _, _ := m.group.Do(probeKey, func() (any, error) {
		return m.probe(ctx), nil
	})
	return v.(domain.AvailabilityState)
}

// Reconnect moves to connecting and races a fresh probe against
// ReconnectTimeout. The spacing limit does not apply. A probe that outlives
// the timeout keeps running and records its result when it finishes.
func (m *Monitor) Reconnect(ctx context.Context) (domain.ReconnectOutcome, domain.AvailabilityState) {
	m.update(func(s *domain.AvailabilityState) {
		s.Status = domain.StatusConnecting
	})

	probeCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(probeKey, func() (any, error) {
		return m.probe(probeCtx), nil
	})

	timer := time.NewTimer(m.cfg.ReconnectTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		state := res.Val.(domain.AvailabilityState)
		if state.Status == domain.StatusOnline {
			return domain.ReconnectRestored, state
		}
		return domain.ReconnectStillUnavailable, state
	case <-timer.C:
		m.logger.Warn("reconnect probe timed out", "timeout", m.cfg.ReconnectTimeout)
	case <-ctx.Done():
		m.logger.Debug("reconnect abandoned", "reason", ctx.Err())
	}

	state := m.update(func(s *domain.AvailabilityState) {
		if s.Status == domain.StatusConnecting {
			s.Status = domain.StatusOffline
		}
	})
	return domain.ReconnectTimedOut, state
}

// Observe folds the outcome of a real remote call into the state: nil marks
// the endpoint online, anything else counts as a failure.
func (m *Monitor) Observe(err error) domain.AvailabilityState {
	return m.record(err, false)
}

// Run polls until ctx is done: every OfflinePoll while offline and every
// OnlinePoll otherwise.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("availability monitor started",
		"online_poll", m.cfg.OnlinePoll,
		"offline_poll", m.cfg.OfflinePoll)

	m.Check(ctx)
	for {
		timer := time.NewTimer(m.PollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("availability monitor shutting down", "reason", ctx.Err())
			return
		case <-timer.C:
			m.Check(ctx)
		}
	}
}

// PollInterval is the delay before the next scheduled probe.
func (m *Monitor) PollInterval() time.Duration {
	if m.State().Status == domain.StatusOffline {
		return m.cfg.OfflinePoll
	}
	return m.cfg.OnlinePoll
}

// probe runs one health check. A 503 gets one more try after
// ProbeRetryDelay plus up to 50% jitter; two 503s in a row are a failure.
func (m *Monitor) probe(ctx context.Context) domain.AvailabilityState {
	err := m.prober.Probe(ctx)
	if gemini.IsServiceUnavailable(err) {
		delay := m.cfg.ProbeRetryDelay + time.Duration(m.rand()*0.5*float64(m.cfg.ProbeRetryDelay))
		m.logger.Warn("probe got 503, retrying once", "delay", delay)
		if serr := m.sleep(ctx, delay); serr == nil {
			err = m.prober.Probe(ctx)
		}
	}
	if err != nil {
		m.logger.Warn("probe failed", "kind", string(gemini.Classify(err)), "error", err)
	}
	return m.record(err, true)
}

func (m *Monitor) record(err error, probed bool) domain.AvailabilityState {
	now := m.now()
	return m.update(func(s *domain.AvailabilityState) {
		if probed {
			s.LastProbe = now
		}
		if err == nil {
			s.Status = domain.StatusOnline
			s.ConsecutiveFailures = 0
			return
		}
		s.Status = domain.StatusOffline
		s.ConsecutiveFailures++
		s.LastFailure = now
	})
}

// update applies fn under the lock and notifies subscribers when the status
// or the failure count changed.
func (m *Monitor) update(fn func(*domain.AvailabilityState)) domain.AvailabilityState {
	m.mu.Lock()
	prev := m.state
	fn(&m.state)
	next := m.state
	var subs []func(domain.AvailabilityState)
	if prev.Status != next.Status || prev.ConsecutiveFailures != next.ConsecutiveFailures {
		subs = make([]func(domain.AvailabilityState), 0, len(m.subs))
		for _, sub := range m.subs {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()

	if prev.Status != next.Status {
		m.logger.Info("remote availability changed",
			"from", string(prev.Status),
			"to", string(next.Status),
			"consecutive_failures", next.ConsecutiveFailures)
	}
	for _, sub := range subs {
		sub(next)
	}
	return next
}
