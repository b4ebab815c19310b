// ABOUTME: Tests for episodic memory storage operations
// ABOUTME: Verifies ordering, filtering, and the single reflection write
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/harper/duet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAssignsID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(openTestDB(t))

	m := &models.EpisodicMemory{ConversationID: "c1", Type: models.MemoryToolUse, Trigger: "current_time", Importance: 0.3}
	id, err := store.Create(ctx, m)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, m.ID)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.MemoryToolUse, got.Type)
	assert.Empty(t, got.Reflection)
}

func TestMemoryStore_CreateRequiresType(t *testing.T) {
	_, err := NewMemoryStore(openTestDB(t)).Create(context.Background(), &models.EpisodicMemory{})
	assert.Error(t, err)
}

func TestMemoryStore_ListOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(openTestDB(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []models.EpisodicMemory{
		{ConversationID: "c1", Type: models.MemoryExperience, Trigger: "old", Importance: 0.9, CreatedAt: base},
		{ConversationID: "c1", Type: models.MemoryToolUse, Trigger: "tool", Importance: 0.2, CreatedAt: base.Add(time.Hour)},
		{ConversationID: "c1", Type: models.MemoryExperience, Trigger: "new", Importance: 0.7, CreatedAt: base.Add(2 * time.Hour)},
		{ConversationID: "c2", Type: models.MemoryExperience, Trigger: "other", Importance: 0.9, CreatedAt: base.Add(3 * time.Hour)},
	}
	for i := range seed {
		_, err := store.Create(ctx, &seed[i])
		require.NoError(t, err)
	}

	all, err := store.List(ctx, models.MemoryFilter{ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].Trigger, "most recent first")
	assert.Equal(t, "old", all[2].Trigger)

	experiences, err := store.List(ctx, models.MemoryFilter{ConversationID: "c1", Type: models.MemoryExperience, Limit: 1})
	require.NoError(t, err)
	require.Len(t, experiences, 1)
	assert.Equal(t, "new", experiences[0].Trigger)

	signal, err := store.List(ctx, models.MemoryFilter{Since: base.Add(30 * time.Minute), MinImportance: 0.6})
	require.NoError(t, err)
	require.Len(t, signal, 2)
	assert.Equal(t, "other", signal[0].Trigger)
	assert.Equal(t, "new", signal[1].Trigger)
}

func TestMemoryStore_ReflectionAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(openTestDB(t))

	id, err := store.Create(ctx, &models.EpisodicMemory{Type: models.MemoryExperience, Importance: 0.8})
	require.NoError(t, err)

	ok, err := store.SetReflection(ctx, id, "they open up late at night")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetReflection(ctx, id, "overwrite attempt")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "they open up late at night", got.Reflection)

	pending, err := store.List(ctx, models.MemoryFilter{WithoutReflection: true})
	require.NoError(t, err)
	assert.Empty(t, pending)

	ok, err = store.SetReflection(ctx, "missing", "text")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.SetReflection(ctx, id, "  ")
	assert.Error(t, err)
}
