// ABOUTME: Shared fixtures for core engine tests
// ABOUTME: In-memory repository, fixed clock, and a deterministic embedder
package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func newTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepositoryInMemory(sqlite.WithClock(fixedClock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// keywordEmbedder maps text onto a tiny bag-of-words vector
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

var embedVocabulary = []string{"coffee", "rain", "tool", "music"}

func (e *keywordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail {
		return nil, errors.New("embedding provider down")
	}

	lower := strings.ToLower(text)
	vec := make([]float64, len(embedVocabulary)+1)
	for i, w := range embedVocabulary {
		if strings.Contains(lower, w) {
			vec[i] = 1
		}
	}
	vec[len(embedVocabulary)] = 0.1
	return vec, nil
}

func (e *keywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
