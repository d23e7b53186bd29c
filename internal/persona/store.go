package persona

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/chatbuddy/internal/domain"
)

// PreferenceKey is the preference under which the selected persona id is kept.
const PreferenceKey = "ChatBuddy_SelectedPersona"

// Preferences is the key-value collaborator used to remember the selection.
// Get reports found=false when the key has never been written.
type Preferences interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Store tracks the current persona for one conversation.
type Store struct {
	mu        sync.RWMutex
	catalog   *Catalog
	defaultID domain.PersonaID
	current   domain.PersonaID
	prefs     Preferences
	logger    *slog.Logger
}

// NewStore creates a Store positioned on defaultID. prefs may be nil, in which
// case selections are not persisted.
func NewStore(catalog *Catalog, defaultID domain.PersonaID, prefs Preferences, logger *slog.Logger) (*Store, error) {
	if _, ok := catalog.Lookup(defaultID); !ok {
		return nil, fmt.Errorf("default persona %q: %w", defaultID, ErrUnknownPersona)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		catalog:   catalog,
		defaultID: defaultID,
		current:   defaultID,
		prefs:     prefs,
		logger:    logger,
	}, nil
}

// SetPersona makes id current. An id outside the catalog selects the default
// persona instead; ok reports whether id was accepted as given.
func (s *Store) SetPersona(id domain.PersonaID) (p domain.Persona, ok bool) {
	p, ok = s.catalog.Lookup(id)
	if !ok {
		s.logger.Warn("unknown persona requested, using default",
			"requested", string(id),
			"default", string(s.defaultID))
		p, _ = s.catalog.Lookup(s.defaultID)
	}

	s.mu.Lock()
	s.current = p.ID
	s.mu.Unlock()
	return p, ok
}

// Select is SetPersona followed by persisting the resulting id. The selection
// stays in effect even when persisting fails.
func (s *Store) Select(ctx context.Context, id domain.PersonaID) (domain.Persona, bool, error) {
	p, ok := s.SetPersona(id)
	if s.prefs == nil {
		return p, ok, nil
	}
	if err := s.prefs.Set(ctx, PreferenceKey, string(p.ID)); err != nil {
		return p, ok, fmt.Errorf("persist persona: %w", err)
	}
	return p, ok, nil
}

// Restore reloads the persisted selection. A missing preference leaves the
// default in place; a stale id falls back to the default.
func (s *Store) Restore(ctx context.Context) (domain.Persona, error) {
	if s.prefs == nil {
		return s.Current(), nil
	}
	value, found, err := s.prefs.Get(ctx, PreferenceKey)
	if err != nil {
		return s.Current(), fmt.Errorf("load persona preference: %w", err)
	}
	if !found {
		return s.Current(), nil
	}
	p, _ := s.SetPersona(domain.PersonaID(value))
	return p, nil
}

// Current returns the active persona.
func (s *Store) Current() domain.Persona {
	s.mu.RLock()
	id := s.current
	s.mu.RUnlock()
	p, _ := s.catalog.Lookup(id)
	return p
}

// List returns the catalog in display order.
func (s *Store) List() []domain.Persona {
	return s.catalog.List()
}
