package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/chatbuddy/internal/store"
)

// DefaultRetentionInterval is how often inactive users are purged.
const DefaultRetentionInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically deletes
// users not seen within ttl, together with their stored preferences. The
// returned channel closes when the worker has stopped.
func StartRetentionWorker(ctx context.Context, repo store.Repository, ttl, interval time.Duration, logger *slog.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		logger.Info("retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				purgeInactiveUsers(ctx, repo, ttl, logger)
			case <-ctx.Done():
				logger.Info("retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func purgeInactiveUsers(ctx context.Context, repo store.Repository, ttl time.Duration, logger *slog.Logger) int64 {
	deleted, err := repo.DeleteInactiveUsers(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("retention worker: context canceled during cleanup", "error", err)
			return 0
		}
		logger.Error("retention worker failed to delete inactive users", "error", err)
		return 0
	}
	if deleted > 0 {
		logger.Info("retention worker removed inactive users", "count", deleted, "ttl", ttl)
	}
	return deleted
}
