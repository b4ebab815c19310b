// ABOUTME: Repository contract consumed by the engine's core components
// ABOUTME: Reads degrade to empty values; writes and creations report errors
package storage

import (
	"context"
	"time"

	"github.com/harper/duet/internal/models"
)

// HistoryStore keeps one ordered history blob per conversation
type HistoryStore interface {
	// GetHistory returns the stored entries oldest first, or nil on failure
	GetHistory(ctx context.Context, conversationID string) []models.HistoryEntry
	// SaveHistory replaces the stored entries for a conversation
	SaveHistory(ctx context.Context, conversationID string, entries []models.HistoryEntry) error
}

// FactStore keeps scoped key/detail facts
type FactStore interface {
	GetFacts(ctx context.Context, conversationID string) []models.Fact
	// SaveFact upserts on (conversation id, key)
	SaveFact(ctx context.Context, conversationID, key, detail string, scope models.FactScope) error
}

// RelationshipStore keeps per-conversation emotion state
type RelationshipStore interface {
	// GetRelationship returns nil when the conversation has no state yet or on failure
	GetRelationship(ctx context.Context, conversationID string) *models.RelationshipState
	// CreateRelationship inserts state unless a row already exists, and returns the stored row
	CreateRelationship(ctx context.Context, state *models.RelationshipState) (*models.RelationshipState, error)
	UpdateRelationship(ctx context.Context, state *models.RelationshipState) error
	// GetMostActiveUser returns the conversation with the latest user activity
	GetMostActiveUser(ctx context.Context) (conversationID string, lastActivity time.Time, ok bool)
	// ListRelationships returns every conversation's state, most recently active first
	ListRelationships(ctx context.Context) []models.RelationshipState
}

// MemoryStore keeps episodic long-term memories
type MemoryStore interface {
	// CreateMemory stores m and returns its id
	CreateMemory(ctx context.Context, m *models.EpisodicMemory) (string, error)
	// GetMemories returns matching memories, most recent first
	GetMemories(ctx context.Context, filter models.MemoryFilter) []models.EpisodicMemory
	// UpdateReflection sets the reflection once; it reports false when the
	// memory is missing or already reflected upon
	UpdateReflection(ctx context.Context, id, reflection string) (bool, error)
}

// VectorStore persists embeddings and ranks them by similarity
type VectorStore interface {
	SaveVector(ctx context.Context, v *models.VectorMemory) error
	SearchVectors(ctx context.Context, query []float64, conversationID string, limit int) ([]models.VectorSearchResult, error)
}

// Repository is the full contract the orchestrator is built against
type Repository interface {
	HistoryStore
	FactStore
	RelationshipStore
	MemoryStore
}
