// ABOUTME: VectorBridge embeds memory sentences and performs similarity recall
// ABOUTME: Degrades to an inert memorizer and empty recall when no embedder is available
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/harper/duet/internal/llm"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage"
	"go.uber.org/zap"
)

// DefaultRecallLimit is the number of vector hits rendered by Recall
const DefaultRecallLimit = 5

// VectorBridge connects the embedding provider to the vector store
type VectorBridge struct {
	base
	embedder llm.Embedder
	store    storage.VectorStore
}

// NewVectorBridge creates a bridge; a nil embedder or store yields an inert bridge
func NewVectorBridge(embedder llm.Embedder, store storage.VectorStore, opts ...Option) *VectorBridge {
	return &VectorBridge{
		base:     newBase("vector_bridge", opts),
		embedder: embedder,
		store:    store,
	}
}

// Enabled reports whether the bridge can embed and store
func (v *VectorBridge) Enabled() bool {
	return v != nil && v.embedder != nil && v.store != nil
}

// Memorize embeds text and stores it with meta, returning the vector id.
// An inert bridge returns ("", nil).
func (v *VectorBridge) Memorize(ctx context.Context, text string, meta models.VectorMetadata) (string, error) {
	if !v.Enabled() {
		return "", nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("cannot memorize empty text")
	}

	embedding, err := v.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to embed memory: %w", err)
	}

	vm := &models.VectorMemory{
		Embedding: embedding,
		Text:      text,
		Metadata:  meta,
		CreatedAt: v.now(),
	}
	if err := v.store.SaveVector(ctx, vm); err != nil {
		return "", fmt.Errorf("failed to save vector: %w", err)
	}
	return vm.ID, nil
}

// Search returns ranked hits for query, optionally restricted to a conversation
func (v *VectorBridge) Search(ctx context.Context, query, conversationID string, limit int) ([]models.VectorSearchResult, error) {
	if !v.Enabled() || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultRecallLimit
	}

	embedding, err := v.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := v.store.SearchVectors(ctx, embedding, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

// Recall renders the best matches as a bullet list; failures yield ""
func (v *VectorBridge) Recall(ctx context.Context, query, conversationID string, limit int) string {
	results, err := v.Search(ctx, query, conversationID, limit)
	if err != nil {
		v.logger.Warn("vector recall failed", zap.Error(err))
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s (relevance %.2f)\n", r.Text, r.SimilarityScore)
	}
	return b.String()
}
