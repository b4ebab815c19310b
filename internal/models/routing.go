// ABOUTME: Persona identifiers and dialogue modes for turn routing
// ABOUTME: A mode decides which personas answer a turn and in what shape
package models

import (
	"fmt"
	"strings"
)

// Persona identifies one of the two personality states
type Persona string

const (
	// Demon is the sharp-tongued persona
	Demon Persona = "demon"
	// Angel is the gentle persona
	Angel Persona = "angel"
)

// Personas lists every persona in a stable order
var Personas = []Persona{Demon, Angel}

// Valid reports whether p is a known persona
func (p Persona) Valid() bool {
	return p == Demon || p == Angel
}

// Other returns the opposite persona
func (p Persona) Other() Persona {
	if p == Demon {
		return Angel
	}
	return Demon
}

// Signature is the provenance tag prefixed to facts recorded by this persona
func (p Persona) Signature() string {
	return "[" + strings.ToUpper(string(p)) + "]"
}

// ParsePersona converts a string into a Persona, case-insensitively
func ParsePersona(s string) (Persona, error) {
	p := Persona(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown persona %q", s)
	}
	return p, nil
}

// Mode is the routing shape of a turn
type Mode string

const (
	// ModeDemon - the demon answers alone
	ModeDemon Mode = "demon"

	// ModeAngel - the angel answers alone
	ModeAngel Mode = "angel"

	// ModeDemonAngel - the demon answers, the angel reacts
	ModeDemonAngel Mode = "demon+angel"

	// ModeAngelDemon - the angel answers, the demon reacts
	ModeAngelDemon Mode = "angel+demon"

	// ModeGroup - a director plans who speaks and in which order
	ModeGroup Mode = "group"
)

// Modes lists every supported mode
var Modes = []Mode{ModeDemon, ModeAngel, ModeDemonAngel, ModeAngelDemon, ModeGroup}

// ParseMode converts a string into a Mode
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Modes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// IsSolo reports whether a single persona answers
func (m Mode) IsSolo() bool {
	return m == ModeDemon || m == ModeAngel
}

// IsReactive reports whether the mode is a reactive pair
func (m Mode) IsReactive() bool {
	return m == ModeDemonAngel || m == ModeAngelDemon
}

// IsGroup reports whether the director plans the turn
func (m Mode) IsGroup() bool {
	return m == ModeGroup
}

// Primary returns the persona that answers first. Group mode has no fixed
// primary and reports the demon, which matches the user-triggered fallback plan.
func (m Mode) Primary() Persona {
	switch m {
	case ModeAngel, ModeAngelDemon:
		return Angel
	default:
		return Demon
	}
}

// Reactor returns the persona that reacts in a reactive pair, or "" otherwise
func (m Mode) Reactor() Persona {
	if !m.IsReactive() {
		return ""
	}
	return m.Primary().Other()
}

// ActivePersonas returns the personas whose emotion state a turn touches
func (m Mode) ActivePersonas() []Persona {
	if m.IsSolo() {
		return []Persona{m.Primary()}
	}
	return []Persona{m.Primary(), m.Primary().Other()}
}
