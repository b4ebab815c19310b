// ABOUTME: Conversation history backend on a local BoltDB file
// ABOUTME: One JSON blob per conversation in a single bucket, trimmed to the history cap
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/models"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var historyBucket = []byte("histories")

// BoltHistory implements HistoryStore on top of a bbolt database
type BoltHistory struct {
	db     *bolt.DB
	cap    int
	logger *zap.Logger
}

// OpenBoltHistory opens (or creates) the bolt file at path
func OpenBoltHistory(path string, historyCap int, logger *zap.Logger) (*BoltHistory, error) {
	if historyCap <= 0 {
		historyCap = models.DefaultHistoryCap
	}
	logger = logging.OrNop(logger)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt history: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(historyBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}
	return &BoltHistory{
		db:     db,
		cap:    historyCap,
		logger: logger.With(zap.String("component", "bolt_history")),
	}, nil
}

// GetHistory returns the stored entries oldest first
func (h *BoltHistory) GetHistory(_ context.Context, conversationID string) []models.HistoryEntry {
	var entries []models.HistoryEntry
	err := h.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(historyBucket).Get([]byte(conversationID))
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &entries)
	})
	if err != nil {
		h.logger.Warn("history not loaded", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return entries
}

// SaveHistory writes the trimmed entries as one blob
func (h *BoltHistory) SaveHistory(_ context.Context, conversationID string, entries []models.HistoryEntry) error {
	if conversationID == "" {
		return fmt.Errorf("conversationID cannot be empty")
	}
	enc, err := json.Marshal(models.TrimHistory(entries, h.cap))
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Put([]byte(conversationID), enc)
	}); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// DeleteHistory removes the blob for a conversation
func (h *BoltHistory) DeleteHistory(_ context.Context, conversationID string) error {
	return h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).Delete([]byte(conversationID))
	})
}

// Conversations lists every conversation with a stored history, sorted
func (h *BoltHistory) Conversations(_ context.Context) ([]string, error) {
	var ids []string
	err := h.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(historyBucket).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the bolt file lock
func (h *BoltHistory) Close() error {
	return h.db.Close()
}
