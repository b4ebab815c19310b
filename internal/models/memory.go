// ABOUTME: EpisodicMemory and VectorMemory structures for long-term recall
// ABOUTME: Episodic rows are authoritative; vector rows back-reference them best-effort
package models

import "time"

// MemoryType classifies an episodic memory
type MemoryType string

const (
	MemoryToolUse      MemoryType = "tool_use"
	MemoryExperience   MemoryType = "experience"
	MemoryConversation MemoryType = "conversation"
	MemoryReflection   MemoryType = "reflection"
)

// DefaultVectorThreshold is the importance at or above which a memory is vector-indexed
const DefaultVectorThreshold = 0.8

// ExperienceImportance is the fixed importance of storeExperience artifacts
const ExperienceImportance = 0.9

// EpisodicMemory is a structured long-term memory record
type EpisodicMemory struct {
	ID             string     `json:"id" yaml:"id"`
	ConversationID string     `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	Type           MemoryType `json:"type" yaml:"type"`
	Trigger        string     `json:"trigger" yaml:"trigger"`
	Action         string     `json:"action" yaml:"action"`
	Result         string     `json:"result" yaml:"result"`
	Importance     float64    `json:"importance_score" yaml:"importance_score"`
	Reflection     string     `json:"reflection,omitempty" yaml:"reflection,omitempty"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
}

// MemoryFilter selects episodic memories; zero values mean "no constraint"
type MemoryFilter struct {
	ConversationID    string
	Type              MemoryType
	Since             time.Time
	MinImportance     float64
	WithoutReflection bool
	Limit             int
}

// VectorMetadata links a vector row back to its source
type VectorMetadata struct {
	Source         string     `json:"source"`
	OriginalType   MemoryType `json:"original_type"`
	SQLID          string     `json:"sql_id,omitempty"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

// VectorMemory is an embedded, similarity-searchable memory
type VectorMemory struct {
	ID        string         `json:"id"`
	Embedding []float64      `json:"embedding"`
	Text      string         `json:"text"`
	Metadata  VectorMetadata `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// VectorSearchResult represents a search result with similarity score
type VectorSearchResult struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	Metadata        VectorMetadata `json:"metadata"`
	SimilarityScore float64        `json:"similarity_score"`
}
