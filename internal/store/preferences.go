package store

import "context"

// UserPreferences is the key-value view of one user's preferences.
type UserPreferences struct {
	repo   Repository
	userID string
}

// PreferencesFor returns the preferences of userID backed by repo.
func PreferencesFor(repo Repository, userID string) *UserPreferences {
	return &UserPreferences{repo: repo, userID: userID}
}

// Get reads key.
func (p *UserPreferences) Get(ctx context.Context, key string) (string, bool, error) {
	return p.repo.GetPreference(ctx, p.userID, key)
}

// Set writes key.
func (p *UserPreferences) Set(ctx context.Context, key, value string) error {
	return p.repo.SetPreference(ctx, p.userID, key, value)
}
