// Package persona holds the built-in persona catalog and the currently
// selected persona.
package persona

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/ashureev/chatbuddy/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var builtinYAML []byte

// ErrUnknownPersona is returned when an id is not part of the catalog.
var ErrUnknownPersona = errors.New("unknown persona")

// Catalog is the immutable set of personas, resolved once at startup.
type Catalog struct {
	byID  map[domain.PersonaID]domain.Persona
	order []domain.PersonaID
}

type catalogFile struct {
	Personas []domain.Persona `yaml:"personas"`
}

// LoadCatalog parses the embedded persona catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(builtinYAML)
}

// MustLoadCatalog is LoadCatalog for callers that cannot continue without
// personas. It panics on a malformed embedded catalog.
func MustLoadCatalog() *Catalog {
	c, err := LoadCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCatalog decodes and validates a YAML catalog. Every built-in persona id
// must be defined exactly once and nothing else may be defined.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode persona catalog: %w", err)
	}

	byID := make(map[domain.PersonaID]domain.Persona, len(file.Personas))
	for _, p := range file.Personas {
		if !p.ID.Valid() {
			return nil, fmt.Errorf("persona %q: %w", p.ID, ErrUnknownPersona)
		}
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("persona %q defined twice", p.ID)
		}
		if p.Name == "" || p.SystemPrompt == "" || p.Greeting == "" {
			return nil, fmt.Errorf("persona %q: name, system_prompt and greeting are required", p.ID)
		}
		byID[p.ID] = p
	}

	order := domain.PersonaIDs()
	for _, id := range order {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("persona %q missing from catalog", id)
		}
	}

	return &Catalog{byID: byID, order: order}, nil
}

// Lookup returns the persona for id.
func (c *Catalog) Lookup(id domain.PersonaID) (domain.Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// List returns every persona in display order.
func (c *Catalog) List() []domain.Persona {
	out := make([]domain.Persona, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
