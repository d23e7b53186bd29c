// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/chatbuddy/internal/domain"
)

// Repository defines the interface for persisting anonymous users and their
// preferences.
type Repository interface {
	// GetUser retrieves a user by their user ID. A missing user is (nil, nil).
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetPreference reads one preference. found is false when it was never set.
	GetPreference(ctx context.Context, userID, key string) (value string, found bool, err error)

	// SetPreference writes one preference.
	SetPreference(ctx context.Context, userID, key, value string) error

	// DeleteInactiveUsers removes users, and their preferences, not seen
	// within ttl.
	DeleteInactiveUsers(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
