// ABOUTME: Conversation history backend on Charm KV for cloud-synced histories
// ABOUTME: Stores one JSON blob per conversation, trimmed to the history cap
package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/harper/duet/internal/charm"
	"github.com/harper/duet/internal/logging"
	"github.com/harper/duet/internal/models"
	"go.uber.org/zap"
)

// CharmHistory implements HistoryStore on top of a charm client
type CharmHistory struct {
	charm  *charm.Client
	cap    int
	logger *zap.Logger
}

// NewCharmHistory creates a history store; historyCap <= 0 uses models.DefaultHistoryCap
func NewCharmHistory(client *charm.Client, historyCap int, logger *zap.Logger) *CharmHistory {
	if historyCap <= 0 {
		historyCap = models.DefaultHistoryCap
	}
	logger = logging.OrNop(logger)
	return &CharmHistory{
		charm:  client,
		cap:    historyCap,
		logger: logger.With(zap.String("component", "charm_history")),
	}
}

// GetHistory returns the stored entries oldest first
func (h *CharmHistory) GetHistory(_ context.Context, conversationID string) []models.HistoryEntry {
	var entries []models.HistoryEntry
	if err := h.charm.GetJSON(charm.HistoryKey(conversationID), &entries); err != nil {
		// a missing key surfaces as an error from the KV as well
		h.logger.Debug("history not loaded", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return entries
}

// SaveHistory writes the trimmed entries as one blob
func (h *CharmHistory) SaveHistory(_ context.Context, conversationID string, entries []models.HistoryEntry) error {
	if conversationID == "" {
		return fmt.Errorf("conversationID cannot be empty")
	}
	trimmed := models.TrimHistory(entries, h.cap)
	if err := h.charm.SetJSON(charm.HistoryKey(conversationID), trimmed); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// DeleteHistory removes the blob for a conversation
func (h *CharmHistory) DeleteHistory(_ context.Context, conversationID string) error {
	return h.charm.Delete(charm.HistoryKey(conversationID))
}

// Conversations lists every conversation with a stored history, sorted
func (h *CharmHistory) Conversations(_ context.Context) ([]string, error) {
	keys, err := h.charm.ListKeys(charm.HistoryPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id, ok := charm.ConversationFromKey(k); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
