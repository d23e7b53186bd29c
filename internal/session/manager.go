// Package session keeps per-persona conversation history.
package session

import (
	"fmt"
	"sync"

	"github.com/ashureev/chatbuddy/internal/domain"
)

// SeedSource resolves the persona whose prompt and greeting seed a history.
type SeedSource interface {
	Lookup(id domain.PersonaID) (domain.Persona, bool)
}

// Manager owns one history per persona. The first two turns of every history
// are the seed pair and survive truncation.
type Manager struct {
	mu        sync.Mutex
	seeds     SeedSource
	maxLen    int
	histories map[domain.PersonaID][]domain.Turn
}

// NewManager creates a Manager that caps every history at maxLen turns.
// maxLen below 3 is raised to 3 so at least one live turn fits after the seed pair.
func NewManager(seeds SeedSource, maxLen int) *Manager {
	if maxLen < 3 {
		maxLen = 3
	}
	return &Manager{
		seeds:     seeds,
		maxLen:    maxLen,
		histories: make(map[domain.PersonaID][]domain.Turn),
	}
}

// History returns a copy of the persona's history, seeding it on first use.
func (m *Manager) History(id domain.PersonaID) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.historyLocked(id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Turn, len(h))
	copy(out, h)
	return out, nil
}

// Append adds a turn and truncates to the seed pair plus the most recent
// maxLen-2 turns.
func (m *Manager) Append(id domain.PersonaID, role domain.Role, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.historyLocked(id)
	if err != nil {
		return err
	}
	h = append(h, domain.Turn{Role: role, Text: text})
	if len(h) > m.maxLen {
		keep := m.maxLen - 2
		trimmed := make([]domain.Turn, 0, m.maxLen)
		trimmed = append(trimmed, h[:2]...)
		trimmed = append(trimmed, h[len(h)-keep:]...)
		h = trimmed
	}
	m.histories[id] = h
	return nil
}

// Reset restores the persona's history to its seed pair.
func (m *Manager) Reset(id domain.PersonaID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seed, err := m.seedPair(id)
	if err != nil {
		return err
	}
	m.histories[id] = seed
	return nil
}

func (m *Manager) historyLocked(id domain.PersonaID) ([]domain.Turn, error) {
	if h, ok := m.histories[id]; ok {
		return h, nil
	}
	seed, err := m.seedPair(id)
	if err != nil {
		return nil, err
	}
	m.histories[id] = seed
	return seed, nil
}

func (m *Manager) seedPair(id domain.PersonaID) ([]domain.Turn, error) {
	p, ok := m.seeds.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("seed history for %q: unknown persona", id)
	}
	h := make([]domain.Turn, 2, m.maxLen)
	h[0] = domain.Turn{Role: domain.RoleUser, Text: p.SeedPrompt()}
	h[1] = domain.Turn{Role: domain.RoleModel, Text: p.Greeting}
	return h, nil
}
