// ABOUTME: Fact storage operations for SQLite
// ABOUTME: Upserts scoped facts on (conversation, key) and lists them per conversation
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harper/duet/internal/models"
)

// FactStore handles fact persistence
type FactStore struct {
	db *DB
}

// NewFactStore creates a new FactStore
func NewFactStore(db *DB) *FactStore {
	return &FactStore{db: db}
}

// Save upserts a fact; detail, scope and timestamp replace any previous value
func (s *FactStore) Save(ctx context.Context, fact *models.Fact) error {
	if fact == nil {
		return fmt.Errorf("fact cannot be nil")
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO facts (conversation_id, key, detail, scope, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, key) DO UPDATE SET
			detail = excluded.detail,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`, fact.ConversationID, fact.Key, fact.Detail, string(fact.Scope), toMillis(fact.UpdatedAt))
	return err
}

// Get retrieves one fact by key, returning nil if not found
func (s *FactStore) Get(ctx context.Context, conversationID, key string) (*models.Fact, error) {
	var (
		fact    models.Fact
		scope   string
		updated int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT conversation_id, key, detail, scope, updated_at
		FROM facts
		WHERE conversation_id = ? AND key = ?
	`, conversationID, key).Scan(&fact.ConversationID, &fact.Key, &fact.Detail, &scope, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fact.Scope = models.FactScope(scope)
	fact.UpdatedAt = fromMillis(updated)
	return &fact, nil
}

// List returns every fact for a conversation ordered by key
func (s *FactStore) List(ctx context.Context, conversationID string) ([]models.Fact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT conversation_id, key, detail, scope, updated_at
		FROM facts
		WHERE conversation_id = ?
		ORDER BY key ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return s.scanFacts(rows)
}

// Search finds facts whose key or detail contains query
func (s *FactStore) Search(ctx context.Context, conversationID, query string, maxResults int) ([]models.Fact, error) {
	likePattern := "%" + query + "%"
	rows, err := s.db.Query(ctx, `
		SELECT conversation_id, key, detail, scope, updated_at
		FROM facts
		WHERE conversation_id = ? AND (key LIKE ? OR detail LIKE ?)
		ORDER BY updated_at DESC
		LIMIT ?
	`, conversationID, likePattern, likePattern, maxResults)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return s.scanFacts(rows)
}

// DeleteByConversation removes every fact for a conversation
func (s *FactStore) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	result, err := s.db.Exec(ctx, "DELETE FROM facts WHERE conversation_id = ?", conversationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// scanFacts scans rows into a slice of Fact
func (s *FactStore) scanFacts(rows *sql.Rows) ([]models.Fact, error) {
	var facts []models.Fact

	for rows.Next() {
		var (
			fact    models.Fact
			scope   string
			updated int64
		)
		if err := rows.Scan(&fact.ConversationID, &fact.Key, &fact.Detail, &scope, &updated); err != nil {
			return nil, err
		}
		fact.Scope = models.FactScope(scope)
		fact.UpdatedAt = fromMillis(updated)
		facts = append(facts, fact)
	}

	return facts, rows.Err()
}
