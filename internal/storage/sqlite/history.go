// ABOUTME: Conversation history storage operations for SQLite
// ABOUTME: Keeps one JSON blob per conversation trimmed to a fixed cap
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harper/duet/internal/models"
)

// HistoryStore handles history blob persistence
type HistoryStore struct {
	db       *DB
	capacity int
}

// NewHistoryStore creates a new HistoryStore; capacity <= 0 uses models.DefaultHistoryCap
func NewHistoryStore(db *DB, capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = models.DefaultHistoryCap
	}
	return &HistoryStore{db: db, capacity: capacity}
}

// Get returns the stored entries oldest first, nil if none
func (s *HistoryStore) Get(ctx context.Context, conversationID string) ([]models.HistoryEntry, error) {
	var blob string
	err := s.db.QueryRow(ctx, `
		SELECT entries FROM histories WHERE conversation_id = ?
	`, conversationID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal([]byte(blob), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return entries, nil
}

// Save replaces the conversation's history with the most recent entries
func (s *HistoryStore) Save(ctx context.Context, conversationID string, entries []models.HistoryEntry, now time.Time) error {
	if conversationID == "" {
		return fmt.Errorf("conversationID cannot be empty")
	}
	trimmed := models.TrimHistory(entries, s.capacity)
	if trimmed == nil {
		trimmed = []models.HistoryEntry{}
	}

	blob, err := json.Marshal(trimmed)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO histories (conversation_id, entries, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			entries = excluded.entries,
			updated_at = excluded.updated_at
	`, conversationID, string(blob), toMillis(now))
	return err
}

// Delete removes the conversation's history
func (s *HistoryStore) Delete(ctx context.Context, conversationID string) error {
	_, err := s.db.Exec(ctx, "DELETE FROM histories WHERE conversation_id = ?", conversationID)
	return err
}
