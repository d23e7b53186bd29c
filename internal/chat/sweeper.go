package chat

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often idle conversations are looked for.
const DefaultSweepInterval = time.Minute

// StartSweeper evicts conversations idle for longer than the configured
// IdleTTL until ctx is done. The returned channel closes when the worker has
// stopped.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		s.logger.Info("idle sweeper started", "interval", interval, "ttl", s.cfg.IdleTTL)

		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				s.logger.Info("idle sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Sweep evicts idle conversations and returns how many were dropped. A
// conversation with a message in flight is never evicted.
func (s *Service) Sweep() int {
	if s.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	var evicted []string
	for userID, conv := range s.convs {
		if !conv.idleSince().Before(cutoff) {
			continue
		}
		if !conv.busy.TryLock() {
			continue
		}
		delete(s.convs, userID)
		conv.busy.Unlock()
		evicted = append(evicted, userID)
	}
	s.mu.Unlock()

	if len(evicted) > 0 {
		s.logger.Info("idle sweeper evicted conversations", "count", len(evicted))
		for _, userID := range evicted {
			s.logger.Debug("conversation evicted", "user_id", userID)
		}
	}
	return len(evicted)
}
