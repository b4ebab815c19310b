// ABOUTME: Episodic memory storage operations for SQLite
// ABOUTME: Records are immutable apart from a single reflection write
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harper/duet/internal/models"
)

// MemoryStore handles episodic memory persistence
type MemoryStore struct {
	db *DB
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// Create inserts m, assigning an id and timestamp when missing, and returns the id
func (s *MemoryStore) Create(ctx context.Context, m *models.EpisodicMemory) (string, error) {
	if m == nil {
		return "", fmt.Errorf("memory cannot be nil")
	}
	if m.Type == "" {
		return "", fmt.Errorf("memory type cannot be empty")
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO memories (id, conversation_id, type, trigger_text, action, result, importance, reflection, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ConversationID, string(m.Type), m.Trigger, m.Action, m.Result,
		m.Importance, nullString(m.Reflection), toMillis(m.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("failed to insert memory: %w", err)
	}
	return m.ID, nil
}

// Get retrieves one memory by id, returning nil if not found
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.EpisodicMemory, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, conversation_id, type, trigger_text, action, result, importance, reflection, created_at
		FROM memories
		WHERE id = ?
	`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// List returns memories matching filter, most recent first
func (s *MemoryStore) List(ctx context.Context, filter models.MemoryFilter) ([]models.EpisodicMemory, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, toMillis(filter.Since))
	}
	if filter.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, filter.MinImportance)
	}
	if filter.WithoutReflection {
		where = append(where, "reflection IS NULL")
	}

	query := `SELECT id, conversation_id, type, trigger_text, action, result, importance, reflection, created_at
		FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var memories []models.EpisodicMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

// SetReflection stores reflection once. It reports whether a row changed.
func (s *MemoryStore) SetReflection(ctx context.Context, id, reflection string) (bool, error) {
	if strings.TrimSpace(reflection) == "" {
		return false, fmt.Errorf("reflection cannot be empty")
	}
	result, err := s.db.Exec(ctx, `
		UPDATE memories SET reflection = ?
		WHERE id = ? AND reflection IS NULL
	`, reflection, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByConversation removes every memory for a conversation
func (s *MemoryStore) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	result, err := s.db.Exec(ctx, "DELETE FROM memories WHERE conversation_id = ?", conversationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMemory(row rowScanner) (*models.EpisodicMemory, error) {
	var (
		m          models.EpisodicMemory
		memType    string
		reflection sql.NullString
		created    int64
	)
	err := row.Scan(&m.ID, &m.ConversationID, &memType, &m.Trigger, &m.Action, &m.Result,
		&m.Importance, &reflection, &created)
	if err != nil {
		return nil, err
	}
	m.Type = models.MemoryType(memType)
	if reflection.Valid {
		m.Reflection = reflection.String
	}
	m.CreatedAt = fromMillis(created)
	return &m, nil
}
