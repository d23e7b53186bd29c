package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPrefs struct {
	values map[string]string
	setErr error
}

func newMemPrefs() *memPrefs {
	return &memPrefs{values: make(map[string]string)}
}

func (m *memPrefs) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memPrefs) Set(_ context.Context, key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func TestBuiltinCatalogCoversEveryPersona(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, len(domain.PersonaIDs()))
	for i, id := range domain.PersonaIDs() {
		assert.Equal(t, id, list[i].ID)
		assert.NotEmpty(t, list[i].SystemPrompt)
		assert.NotEmpty(t, list[i].Greeting)
		assert.NotEmpty(t, list[i].BubbleColor)
		assert.NotEmpty(t, list[i].TextColor)
	}
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "not yaml", yaml: "personas: [::"},
		{name: "unknown id", yaml: `
personas:
  - {id: pirate, name: Pirate, system_prompt: arr, greeting: ahoy}
`},
		{name: "missing persona", yaml: `
personas:
  - {id: best_friend, name: A, system_prompt: p, greeting: g}
`},
		{name: "duplicate", yaml: `
personas:
  - {id: best_friend, name: A, system_prompt: p, greeting: g}
  - {id: best_friend, name: A, system_prompt: p, greeting: g}
`},
		{name: "missing greeting", yaml: `
personas:
  - {id: best_friend, name: A, system_prompt: p}
  - {id: empathetic_listener, name: B, system_prompt: p, greeting: g}
  - {id: motivational_coach, name: C, system_prompt: p, greeting: g}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSetPersonaInvalidFallsBackToDefault(t *testing.T) {
	s, err := NewStore(MustLoadCatalog(), domain.PersonaEmpatheticListener, nil, nil)
	require.NoError(t, err)

	p, ok := s.SetPersona(domain.PersonaMotivationalCoach)
	assert.True(t, ok)
	assert.Equal(t, domain.PersonaMotivationalCoach, p.ID)
	assert.Equal(t, domain.PersonaMotivationalCoach, s.Current().ID)

	p, ok = s.SetPersona("not_a_persona")
	assert.False(t, ok)
	assert.Equal(t, domain.PersonaEmpatheticListener, p.ID)
	assert.Equal(t, domain.PersonaEmpatheticListener, s.Current().ID)
}

func TestNewStoreRejectsUnknownDefault(t *testing.T) {
	_, err := NewStore(MustLoadCatalog(), "ghost", nil, nil)
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestSelectPersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	prefs := newMemPrefs()
	catalog := MustLoadCatalog()

	s, err := NewStore(catalog, domain.PersonaBestFriend, prefs, nil)
	require.NoError(t, err)
	_, ok, err := s.Select(ctx, domain.PersonaMotivationalCoach)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "motivational_coach", prefs.values[PreferenceKey])

	restored, err := NewStore(catalog, domain.PersonaBestFriend, prefs, nil)
	require.NoError(t, err)
	p, err := restored.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PersonaMotivationalCoach, p.ID)
}

func TestRestoreStaleValueUsesDefault(t *testing.T) {
	prefs := newMemPrefs()
	prefs.values[PreferenceKey] = "retired_persona"

	s, err := NewStore(MustLoadCatalog(), domain.PersonaBestFriend, prefs, nil)
	require.NoError(t, err)
	p, err := s.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PersonaBestFriend, p.ID)
}

func TestSelectKeepsSelectionWhenPersistFails(t *testing.T) {
	prefs := newMemPrefs()
	prefs.setErr = errors.New("disk full")

	s, err := NewStore(MustLoadCatalog(), domain.PersonaBestFriend, prefs, nil)
	require.NoError(t, err)
	p, _, err := s.Select(context.Background(), domain.PersonaEmpatheticListener)
	assert.Error(t, err)
	assert.Equal(t, domain.PersonaEmpatheticListener, p.ID)
	assert.Equal(t, domain.PersonaEmpatheticListener, s.Current().ID)
}
