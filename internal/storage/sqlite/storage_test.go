// ABOUTME: Tests for the Repository facade over all SQLite stores
// ABOUTME: Verifies safe defaults, fact upserts, history bounds, and reset
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/harper/duet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, opts ...Option) *Repository {
	t.Helper()
	repo, err := NewRepositoryInMemory(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRepository_EmptyDefaults(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	assert.Nil(t, repo.GetHistory(ctx, "c1"))
	assert.Empty(t, repo.GetFacts(ctx, "c1"))
	assert.Nil(t, repo.GetRelationship(ctx, "c1"))
	assert.Empty(t, repo.GetMemories(ctx, models.MemoryFilter{}))
	_, _, ok := repo.GetMostActiveUser(ctx)
	assert.False(t, ok)
}

func TestRepository_ReadsDegradeAfterClose(t *testing.T) {
	ctx := context.Background()
	repo, err := NewRepositoryInMemory()
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	assert.NotPanics(t, func() {
		assert.Nil(t, repo.GetHistory(ctx, "c1"))
		assert.Nil(t, repo.GetFacts(ctx, "c1"))
		assert.Nil(t, repo.GetRelationship(ctx, "c1"))
		assert.Nil(t, repo.GetMemories(ctx, models.MemoryFilter{}))
		assert.Nil(t, repo.ListRelationships(ctx))
	})
	_, err = repo.CreateMemory(ctx, &models.EpisodicMemory{Type: models.MemoryExperience})
	assert.Error(t, err, "creation failures are reported")
}

func TestRepository_SaveFactTwiceKeepsLatest(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := t0
	repo := newTestRepository(t, WithClock(func() time.Time { return clock }))

	require.NoError(t, repo.SaveFact(ctx, "c1", "Favorite Color", "[DEMON] red", models.ScopeUser))
	clock = t0.Add(time.Hour)
	require.NoError(t, repo.SaveFact(ctx, "c1", "favorite_color", "[ANGEL] blue", models.ScopeUser))

	facts := repo.GetFacts(ctx, "c1")
	require.Len(t, facts, 1)
	assert.Equal(t, "favorite_color", facts[0].Key)
	assert.Equal(t, "[ANGEL] blue", facts[0].Detail)
	assert.True(t, facts[0].UpdatedAt.Equal(clock))
}

func TestRepository_SaveFactValidates(t *testing.T) {
	repo := newTestRepository(t)
	assert.Error(t, repo.SaveFact(context.Background(), "c1", "", "detail", models.ScopeUser))
	assert.Error(t, repo.SaveFact(context.Background(), "c1", "k", "detail", "them"))
}

func TestRepository_HistoryNeverExceedsCap(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var running []models.HistoryEntry
	for turn := 0; turn < 40; turn++ {
		running = append(repo.GetHistory(ctx, "c1"), makeEntries(2, base.Add(time.Duration(turn)*time.Minute))...)
		require.NoError(t, repo.SaveHistory(ctx, "c1", running))
		assert.LessOrEqual(t, len(repo.GetHistory(ctx, "c1")), models.DefaultHistoryCap)
	}

	got := repo.GetHistory(ctx, "c1")
	require.Len(t, got, models.DefaultHistoryCap)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.Before(got[i-1].Timestamp), "entries stay in order")
	}
	assert.True(t, running[len(running)-1].Timestamp.Equal(got[len(got)-1].Timestamp))
}

func TestRepository_UpdateRelationshipStamps(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 2, 2, 2, 2, 0, time.UTC)
	repo := newTestRepository(t, WithClock(fixedClock(now)))

	state := &models.RelationshipState{ConversationID: "c1", Demon: models.DefaultEmotion(), Angel: models.DefaultEmotion()}
	require.NoError(t, repo.UpdateRelationship(ctx, state))

	got := repo.GetRelationship(ctx, "c1")
	require.NotNil(t, got)
	assert.True(t, got.UpdatedAt.Equal(now))
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestRepository_ResetConversation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	now := time.Now().UTC()

	_, err := repo.CreateRelationship(ctx, models.NewRelationshipState("c1", now))
	require.NoError(t, err)
	require.NoError(t, repo.SaveFact(ctx, "c1", "k", "d", models.ScopeUs))
	require.NoError(t, repo.SaveHistory(ctx, "c1", makeEntries(2, now)))
	id, err := repo.CreateMemory(ctx, &models.EpisodicMemory{ConversationID: "c1", Type: models.MemoryExperience, Importance: 0.9})
	require.NoError(t, err)
	require.NoError(t, repo.SaveVector(ctx, &models.VectorMemory{Text: "t", Embedding: []float64{1}, Metadata: models.VectorMetadata{ConversationID: "c1", SQLID: id}}))

	// untouched neighbour
	require.NoError(t, repo.SaveFact(ctx, "c2", "k", "d", models.ScopeUs))

	stats, err := repo.ResetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ResetStats{Relationships: 1, Facts: 1, Memories: 1, Vectors: 1}, stats)

	assert.Nil(t, repo.GetRelationship(ctx, "c1"))
	assert.Empty(t, repo.GetFacts(ctx, "c1"))
	assert.Nil(t, repo.GetHistory(ctx, "c1"))
	assert.Equal(t, 0, repo.CountVectorsFor(ctx, id))
	assert.Len(t, repo.GetFacts(ctx, "c2"), 1)

	_, err = repo.ResetConversation(ctx, "")
	assert.Error(t, err)
}

type recordingHistory struct {
	saved   map[string][]models.HistoryEntry
	deleted []string
}

func (h *recordingHistory) GetHistory(_ context.Context, id string) []models.HistoryEntry {
	return h.saved[id]
}

func (h *recordingHistory) SaveHistory(_ context.Context, id string, entries []models.HistoryEntry) error {
	h.saved[id] = entries
	return nil
}

func (h *recordingHistory) DeleteHistory(_ context.Context, id string) error {
	h.deleted = append(h.deleted, id)
	delete(h.saved, id)
	return nil
}

func TestRepository_HistoryBackendOverride(t *testing.T) {
	ctx := context.Background()
	backend := &recordingHistory{saved: map[string][]models.HistoryEntry{}}
	repo := newTestRepository(t, WithHistoryBackend(backend))

	entries := makeEntries(3, time.Now())
	require.NoError(t, repo.SaveHistory(ctx, "c1", entries))
	assert.Len(t, backend.saved["c1"], 3)
	assert.Len(t, repo.GetHistory(ctx, "c1"), 3)

	_, err := repo.ResetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, backend.deleted)
}
