// Package domain contains core domain types for the ChatBuddy service.
package domain

// PersonaID identifies one of the built-in conversational personas.
// The set is closed; see Valid.
type PersonaID string

// Built-in personas.
const (
	PersonaBestFriend         PersonaID = "best_friend"
	PersonaEmpatheticListener PersonaID = "empathetic_listener"
	PersonaMotivationalCoach  PersonaID = "motivational_coach"
)

// PersonaIDs lists every persona in display order.
func PersonaIDs() []PersonaID {
	return []PersonaID{PersonaBestFriend, PersonaEmpatheticListener, PersonaMotivationalCoach}
}

// Valid reports whether id names a built-in persona.
func (id PersonaID) Valid() bool {
	switch id {
	case PersonaBestFriend, PersonaEmpatheticListener, PersonaMotivationalCoach:
		return true
	default:
		return false
	}
}

// Persona is an immutable personality descriptor.
type Persona struct {
	ID           PersonaID `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description" yaml:"description"`
	SystemPrompt string    `json:"-" yaml:"system_prompt"`
	Greeting     string    `json:"greeting" yaml:"greeting"`
	BubbleColor  string    `json:"bubble_color" yaml:"bubble_color"`
	TextColor    string    `json:"text_color" yaml:"text_color"`
}

// SeedPrompt is the instruction sent as the first user turn of every
// conversation with this persona.
func (p Persona) SeedPrompt() string {
	return "Please act as " + p.Name + ". " + p.SystemPrompt
}
