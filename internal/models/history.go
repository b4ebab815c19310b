// ABOUTME: HistoryEntry is one line of the short-term conversation transcript
// ABOUTME: Stored as a single capped blob per conversation
package models

import "time"

// Role is the author of a history entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Default history sizes
const (
	DefaultHistoryCap    = 60
	DefaultContextWindow = 20
)

// EntryMeta records routing details of a history entry
type EntryMeta struct {
	// Target is the mode a user entry was addressed with
	Target Mode `json:"target,omitempty" yaml:"target,omitempty"`
	// Speaker is the persona that authored an assistant entry
	Speaker Persona `json:"speaker,omitempty" yaml:"speaker,omitempty"`
}

// HistoryEntry represents a single transcript line
type HistoryEntry struct {
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Meta      EntryMeta `json:"meta" yaml:"meta"`
}

// TrimHistory keeps the most recent max entries in their original order
func TrimHistory(entries []HistoryEntry, max int) []HistoryEntry {
	if max <= 0 || len(entries) <= max {
		return entries
	}
	trimmed := make([]HistoryEntry, max)
	copy(trimmed, entries[len(entries)-max:])
	return trimmed
}

// Reply is one persona's contribution to a turn
type Reply struct {
	Speaker Persona `json:"speaker" yaml:"speaker"`
	Content string  `json:"content" yaml:"content"`
}
