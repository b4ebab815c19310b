// ABOUTME: Tests for vector storage and cosine similarity search
// ABOUTME: Verifies BLOB encoding, ranking, and conversation scoping
package sqlite

import (
	"context"
	"math"
	"testing"

	"github.com/harper/duet/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorBlobRoundTrip(t *testing.T) {
	vec := []float64{0.1, -2.5, math.Pi, 0}
	assert.Equal(t, vec, blobToVector(vectorToBlob(vec)))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical", a: []float64{1, 0, 0}, b: []float64{1, 0, 0}, want: 1},
		{name: "orthogonal", a: []float64{1, 0, 0}, b: []float64{0, 1, 0}, want: 0},
		{name: "opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "length mismatch", a: []float64{1}, b: []float64{1, 0}, want: 0},
		{name: "zero vector", a: []float64{0, 0}, b: []float64{1, 0}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestVectorStore_SearchRanksAndScopes(t *testing.T) {
	ctx := context.Background()
	store := NewVectorStore(openTestDB(t))

	seed := []models.VectorMemory{
		{Text: "close", Embedding: []float64{1, 0.1}, Metadata: models.VectorMetadata{ConversationID: "c1", Source: "ltm", OriginalType: models.MemoryExperience, SQLID: "m1"}},
		{Text: "far", Embedding: []float64{0, 1}, Metadata: models.VectorMetadata{ConversationID: "c1", Source: "ltm"}},
		{Text: "other conversation", Embedding: []float64{1, 0}, Metadata: models.VectorMetadata{ConversationID: "c2"}},
	}
	for i := range seed {
		require.NoError(t, store.Save(ctx, &seed[i]))
		assert.NotEmpty(t, seed[i].ID)
	}

	results, err := store.Search(ctx, []float64{1, 0}, "c1", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].Text)
	assert.Equal(t, "m1", results[0].Metadata.SQLID)
	assert.Equal(t, models.MemoryExperience, results[0].Metadata.OriginalType)
	assert.Greater(t, results[0].SimilarityScore, results[1].SimilarityScore)

	everywhere, err := store.Search(ctx, []float64{1, 0}, "", 1)
	require.NoError(t, err)
	require.Len(t, everywhere, 1)
	assert.Equal(t, "other conversation", everywhere[0].Text)

	n, err := store.CountBySQLID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorStore_RejectsEmptyEmbedding(t *testing.T) {
	store := NewVectorStore(openTestDB(t))
	assert.Error(t, store.Save(context.Background(), &models.VectorMemory{Text: "x"}))
}
