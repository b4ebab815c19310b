// ABOUTME: Relationship state storage operations for SQLite
// ABOUTME: One row per conversation holding both personas' emotion values
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harper/duet/internal/models"
)

// RelationshipStore handles relationship persistence
type RelationshipStore struct {
	db *DB
}

// NewRelationshipStore creates a new RelationshipStore
func NewRelationshipStore(db *DB) *RelationshipStore {
	return &RelationshipStore{db: db}
}

const relationshipColumns = `conversation_id,
	demon_affection, demon_trust, demon_mood,
	angel_affection, angel_trust, angel_mood,
	last_user_activity, created_at, updated_at`

// Get retrieves the state for a conversation, returning nil if not found
func (s *RelationshipStore) Get(ctx context.Context, conversationID string) (*models.RelationshipState, error) {
	row := s.db.QueryRow(ctx, `SELECT `+relationshipColumns+`
		FROM relationships
		WHERE conversation_id = ?`, conversationID)

	state, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Create inserts state if no row exists yet and returns whatever is stored.
// Concurrent first accesses converge on a single row.
func (s *RelationshipStore) Create(ctx context.Context, state *models.RelationshipState) (*models.RelationshipState, error) {
	if state == nil || state.ConversationID == "" {
		return nil, fmt.Errorf("conversationID cannot be empty")
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO NOTHING
	`, relationshipArgs(state)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create relationship: %w", err)
	}

	stored, err := s.Get(ctx, state.ConversationID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("relationship %s missing after create", state.ConversationID)
	}
	return stored, nil
}

// Update writes state, inserting the row if it does not exist
func (s *RelationshipStore) Update(ctx context.Context, state *models.RelationshipState) error {
	if state == nil || state.ConversationID == "" {
		return fmt.Errorf("conversationID cannot be empty")
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO relationships (`+relationshipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			demon_affection = excluded.demon_affection,
			demon_trust = excluded.demon_trust,
			demon_mood = excluded.demon_mood,
			angel_affection = excluded.angel_affection,
			angel_trust = excluded.angel_trust,
			angel_mood = excluded.angel_mood,
			last_user_activity = excluded.last_user_activity,
			updated_at = excluded.updated_at
	`, relationshipArgs(state)...)
	return err
}

// MostActive returns the conversation with the latest user activity.
// Ties break on conversation id so the choice is stable.
func (s *RelationshipStore) MostActive(ctx context.Context) (string, time.Time, bool, error) {
	var (
		id   string
		last int64
	)
	err := s.db.QueryRow(ctx, `
		SELECT conversation_id, last_user_activity
		FROM relationships
		WHERE last_user_activity > 0
		ORDER BY last_user_activity DESC, conversation_id ASC
		LIMIT 1
	`).Scan(&id, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, err
	}
	return id, fromMillis(last), true, nil
}

// List returns every relationship, most recently active first
func (s *RelationshipStore) List(ctx context.Context) ([]models.RelationshipState, error) {
	rows, err := s.db.Query(ctx, `SELECT `+relationshipColumns+`
		FROM relationships
		ORDER BY last_user_activity DESC, conversation_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var states []models.RelationshipState
	for rows.Next() {
		state, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

// Delete removes the state for a conversation
func (s *RelationshipStore) Delete(ctx context.Context, conversationID string) (int64, error) {
	result, err := s.db.Exec(ctx, "DELETE FROM relationships WHERE conversation_id = ?", conversationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRelationship(row rowScanner) (*models.RelationshipState, error) {
	var (
		state                  models.RelationshipState
		last, created, updated int64
	)
	err := row.Scan(&state.ConversationID,
		&state.Demon.Affection, &state.Demon.Trust, &state.Demon.Mood,
		&state.Angel.Affection, &state.Angel.Trust, &state.Angel.Mood,
		&last, &created, &updated)
	if err != nil {
		return nil, err
	}
	state.LastUserActivity = fromMillis(last)
	state.CreatedAt = fromMillis(created)
	state.UpdatedAt = fromMillis(updated)
	return &state, nil
}

func relationshipArgs(state *models.RelationshipState) []interface{} {
	return []interface{}{
		state.ConversationID,
		state.Demon.Affection, state.Demon.Trust, state.Demon.Mood,
		state.Angel.Affection, state.Angel.Trust, state.Angel.Mood,
		toMillis(state.LastUserActivity), toMillis(state.CreatedAt), toMillis(state.UpdatedAt),
	}
}
