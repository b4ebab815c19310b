// ABOUTME: Fact represents a scoped key/detail record learned in a conversation
// ABOUTME: Unique per (conversation_id, key) with last-writer-wins upserts
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FactScope describes who a fact is about
type FactScope string

const (
	// ScopeUser - a fact about the user
	ScopeUser FactScope = "user"
	// ScopeAgent - a fact about the personas themselves
	ScopeAgent FactScope = "agent"
	// ScopeUs - a fact about the shared relationship
	ScopeUs FactScope = "us"
)

// ParseScope converts a string into a FactScope
func ParseScope(s string) (FactScope, error) {
	switch FactScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeUser:
		return ScopeUser, nil
	case ScopeAgent:
		return ScopeAgent, nil
	case ScopeUs:
		return ScopeUs, nil
	}
	return "", fmt.Errorf("unknown fact scope %q", s)
}

// Fact represents an extracted key/detail fact
type Fact struct {
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	Key            string    `json:"key" yaml:"key"`
	Detail         string    `json:"detail" yaml:"detail"`
	Scope          FactScope `json:"scope" yaml:"scope"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewFact creates a Fact with validation
func NewFact(conversationID, key, detail string, scope FactScope) (*Fact, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("conversationID cannot be empty")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("key cannot be empty")
	}
	if strings.TrimSpace(detail) == "" {
		return nil, errors.New("detail cannot be empty")
	}
	if _, err := ParseScope(string(scope)); err != nil {
		return nil, err
	}
	return &Fact{
		ConversationID: conversationID,
		Key:            NormalizeFactKey(key),
		Detail:         detail,
		Scope:          scope,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// NormalizeFactKey lower-cases a key and replaces whitespace with underscores
func NormalizeFactKey(key string) string {
	return strings.Join(strings.Fields(strings.ToLower(key)), "_")
}
