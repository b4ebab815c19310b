// ABOUTME: Tests for idle conversation selection strategies
// ABOUTME: Covers recency, affection weighting, and strategy lookup
package agent

import (
	"context"
	"testing"
	"time"

	"github.com/harper/duet/internal/config"
	"github.com/harper/duet/internal/core"
	"github.com/harper/duet/internal/models"
	"github.com/harper/duet/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedState(t *testing.T, repo *sqlite.Repository, id string, idleFor time.Duration, affection int) {
	t.Helper()
	st := models.NewRelationshipState(id, testNow.Add(-idleFor))
	st.Demon.Affection = affection
	st.Angel.Affection = affection
	_, err := repo.CreateRelationship(context.Background(), st)
	require.NoError(t, err)
}

func newIdleRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepositoryInMemory(sqlite.WithClock(fixedClock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRecencySelector(t *testing.T) {
	repo := newIdleRepo(t)
	sel := NewRecencySelector(repo)

	_, _, ok := sel.Select(context.Background())
	assert.False(t, ok)

	seedState(t, repo, "old", 5*time.Hour, 20)
	seedState(t, repo, "recent", 2*time.Hour, 20)

	id, last, ok := sel.Select(context.Background())
	require.True(t, ok)
	assert.Equal(t, "recent", id)
	assert.True(t, last.Equal(testNow.Add(-2*time.Hour)))
}

func TestAffectionSelector_OnlyIdleCandidates(t *testing.T) {
	repo := newIdleRepo(t)
	seedState(t, repo, "active", 10*time.Minute, 100)
	sel := NewAffectionSelector(repo, core.NewSeededRand(3), fixedClock, time.Hour)

	_, _, ok := sel.Select(context.Background())
	assert.False(t, ok)

	seedState(t, repo, "quiet", 3*time.Hour, 0)
	id, _, ok := sel.Select(context.Background())
	require.True(t, ok)
	assert.Equal(t, "quiet", id)
}

func TestAffectionSelector_WeightsByAffection(t *testing.T) {
	repo := newIdleRepo(t)
	seedState(t, repo, "cold", 2*time.Hour, 0)
	seedState(t, repo, "warm", 2*time.Hour, 98)
	sel := NewAffectionSelector(repo, core.NewSeededRand(11), fixedClock, time.Hour)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		id, _, ok := sel.Select(context.Background())
		require.True(t, ok)
		counts[id]++
	}
	// weights are 1 and 99 (mood 0 leaves effective affection untouched)
	assert.Greater(t, counts["warm"], 1900)
	assert.Greater(t, counts["cold"], 0)
}

func TestNewIdleSelector(t *testing.T) {
	repo := newIdleRepo(t)

	sel, err := NewIdleSelector("", repo, nil, nil, time.Hour)
	require.NoError(t, err)
	assert.IsType(t, &RecencySelector{}, sel)

	sel, err = NewIdleSelector(config.StrategyAffection, repo, nil, nil, time.Hour)
	require.NoError(t, err)
	assert.IsType(t, &AffectionSelector{}, sel)

	_, err = NewIdleSelector("loudest", repo, nil, nil, time.Hour)
	assert.Error(t, err)
}
