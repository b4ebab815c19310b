// ABOUTME: Repository facade that wraps all SQLite stores behind the engine contract
// ABOUTME: Read failures are logged and degrade to empty results
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
	"go.uber.org/zap"
)

var (
	_ storage.Repository  = (*Repository)(nil)
	_ storage.VectorStore = (*Repository)(nil)
)

// Repository manages all persistent duet data in SQLite
type Repository struct {
	db            *DB
	relationships *RelationshipStore
	histories     *HistoryStore
	facts         *FactStore
	memories      *MemoryStore
	vectors       *VectorStore

	// history overrides the SQLite history table when set
	history storage.HistoryStore

	historyCap int
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Repository
type Option func(*Repository)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithHistoryCap bounds stored history length
func WithHistoryCap(n int) Option {
	return func(r *Repository) { r.historyCap = n }
}

// WithHistoryBackend stores histories somewhere other than SQLite
func WithHistoryBackend(h storage.HistoryStore) Option {
	return func(r *Repository) { r.history = h }
}

// NewRepository builds a repository over an open database
func NewRepository(db *DB, opts ...Option) *Repository {
	r := &Repository{
		db:         db,
		historyCap: models.DefaultHistoryCap,
		logger:     zap.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "repository"))
	r.relationships = NewRelationshipStore(db)
	r.histories = NewHistoryStore(db, r.historyCap)
	r.facts = NewFactStore(db)
	r.memories = NewMemoryStore(db)
	r.vectors = NewVectorStore(db)
	return r
}

// NewRepositoryWithPath opens the database at dbPath
func NewRepositoryWithPath(dbPath string, opts ...Option) (*Repository, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewRepository(db, opts...), nil
}

// NewRepositoryInMemory creates an in-memory repository (for testing)
func NewRepositoryInMemory(opts ...Option) (*Repository, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return NewRepository(db, opts...), nil
}

// Close closes the database connection and any history backend that needs closing
func (r *Repository) Close() error {
	var errs []error
	if c, ok := r.history.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// DB exposes the underlying database
func (r *Repository) DB() *DB {
	return r.db
}

// --- History ---

// GetHistory returns the conversation's history oldest first
func (r *Repository) GetHistory(ctx context.Context, conversationID string) []models.HistoryEntry {
	if r.history != nil {
		return r.history.GetHistory(ctx, conversationID)
	}
	entries, err := r.histories.Get(ctx, conversationID)
	if err != nil {
		r.logger.Warn("get history failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return entries
}

// SaveHistory replaces the conversation's history, trimmed to the cap
func (r *Repository) SaveHistory(ctx context.Context, conversationID string, entries []models.HistoryEntry) error {
	if r.history != nil {
		return r.history.SaveHistory(ctx, conversationID, entries)
	}
	return r.histories.Save(ctx, conversationID, entries, r.now())
}

// --- Facts ---

// GetFacts returns all facts for a conversation
func (r *Repository) GetFacts(ctx context.Context, conversationID string) []models.Fact {
	facts, err := r.facts.List(ctx, conversationID)
	if err != nil {
		r.logger.Warn("get facts failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return facts
}

// SaveFact validates and upserts a fact, refreshing its timestamp
func (r *Repository) SaveFact(ctx context.Context, conversationID, key, detail string, scope models.FactScope) error {
	fact, err := models.NewFact(conversationID, key, detail, scope)
	if err != nil {
		return err
	}
	fact.UpdatedAt = r.now()
	return r.facts.Save(ctx, fact)
}

// SearchFacts finds facts whose key or detail contains query
func (r *Repository) SearchFacts(ctx context.Context, conversationID, query string, limit int) []models.Fact {
	facts, err := r.facts.Search(ctx, conversationID, query, limit)
	if err != nil {
		r.logger.Warn("search facts failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return facts
}

// --- Relationships ---

// GetRelationship returns the stored state or nil
func (r *Repository) GetRelationship(ctx context.Context, conversationID string) *models.RelationshipState {
	state, err := r.relationships.Get(ctx, conversationID)
	if err != nil {
		r.logger.Warn("get relationship failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return state
}

// CreateRelationship inserts state unless it exists and returns the stored row
func (r *Repository) CreateRelationship(ctx context.Context, state *models.RelationshipState) (*models.RelationshipState, error) {
	return r.relationships.Create(ctx, state)
}

// UpdateRelationship persists state and stamps updated_at
func (r *Repository) UpdateRelationship(ctx context.Context, state *models.RelationshipState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	state.UpdatedAt = r.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = state.UpdatedAt
	}
	return r.relationships.Update(ctx, state)
}

// GetMostActiveUser returns the conversation with the latest user activity
func (r *Repository) GetMostActiveUser(ctx context.Context) (string, time.Time, bool) {
	id, last, ok, err := r.relationships.MostActive(ctx)
	if err != nil {
		r.logger.Warn("most active lookup failed", zap.Error(err))
		return "", time.Time{}, false
	}
	return id, last, ok
}

// ListRelationships returns every conversation's state, most recently active first
func (r *Repository) ListRelationships(ctx context.Context) []models.RelationshipState {
	states, err := r.relationships.List(ctx)
	if err != nil {
		r.logger.Warn("list relationships failed", zap.Error(err))
		return nil
	}
	return states
}

// --- Episodic memories ---

// CreateMemory stores m and returns its id
func (r *Repository) CreateMemory(ctx context.Context, m *models.EpisodicMemory) (string, error) {
	if m != nil && m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	return r.memories.Create(ctx, m)
}

// GetMemories returns memories matching filter, most recent first
func (r *Repository) GetMemories(ctx context.Context, filter models.MemoryFilter) []models.EpisodicMemory {
	memories, err := r.memories.List(ctx, filter)
	if err != nil {
		r.logger.Warn("get memories failed", zap.Error(err))
		return nil
	}
	return memories
}

// GetMemory returns one memory or nil
func (r *Repository) GetMemory(ctx context.Context, id string) *models.EpisodicMemory {
	m, err := r.memories.Get(ctx, id)
	if err != nil {
		r.logger.Warn("get memory failed", zap.String("id", id), zap.Error(err))
		return nil
	}
	return m
}

// UpdateReflection sets a memory's reflection at most once
func (r *Repository) UpdateReflection(ctx context.Context, id, reflection string) (bool, error) {
	return r.memories.SetReflection(ctx, id, reflection)
}

// --- Vectors ---

// SaveVector stores an embedded memory
func (r *Repository) SaveVector(ctx context.Context, v *models.VectorMemory) error {
	if v != nil && v.CreatedAt.IsZero() {
		v.CreatedAt = r.now()
	}
	return r.vectors.Save(ctx, v)
}

// SearchVectors ranks vectors by similarity to query
func (r *Repository) SearchVectors(ctx context.Context, query []float64, conversationID string, limit int) ([]models.VectorSearchResult, error) {
	return r.vectors.Search(ctx, query, conversationID, limit)
}

// CountVectorsFor returns how many vectors link to the episodic memory id
func (r *Repository) CountVectorsFor(ctx context.Context, memoryID string) int {
	n, err := r.vectors.CountBySQLID(ctx, memoryID)
	if err != nil {
		r.logger.Warn("count vectors failed", zap.String("sql_id", memoryID), zap.Error(err))
		return 0
	}
	return n
}

// --- Admin ---

// ResetStats reports what a reset removed
type ResetStats struct {
	Relationships int64
	Facts         int64
	Memories      int64
	Vectors       int64
}

type historyDeleter interface {
	DeleteHistory(ctx context.Context, conversationID string) error
}

// ResetConversation removes every record of a conversation across all stores
func (r *Repository) ResetConversation(ctx context.Context, conversationID string) (ResetStats, error) {
	var stats ResetStats
	if conversationID == "" {
		return stats, fmt.Errorf("conversationID cannot be empty")
	}

	var err error
	if stats.Relationships, err = r.relationships.Delete(ctx, conversationID); err != nil {
		return stats, fmt.Errorf("failed to delete relationship: %w", err)
	}
	if stats.Facts, err = r.facts.DeleteByConversation(ctx, conversationID); err != nil {
		return stats, fmt.Errorf("failed to delete facts: %w", err)
	}
	if stats.Memories, err = r.memories.DeleteByConversation(ctx, conversationID); err != nil {
		return stats, fmt.Errorf("failed to delete memories: %w", err)
	}
	if stats.Vectors, err = r.vectors.DeleteByConversation(ctx, conversationID); err != nil {
		return stats, fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := r.histories.Delete(ctx, conversationID); err != nil {
		return stats, fmt.Errorf("failed to delete history: %w", err)
	}
	if d, ok := r.history.(historyDeleter); ok {
		if err := d.DeleteHistory(ctx, conversationID); err != nil {
			return stats, fmt.Errorf("failed to delete remote history: %w", err)
		}
	}

	r.logger.Info("conversation reset",
		zap.String("conversation_id", conversationID),
		zap.Int64("facts", stats.Facts),
		zap.Int64("memories", stats.Memories),
		zap.Int64("vectors", stats.Vectors))
	return stats, nil
}
