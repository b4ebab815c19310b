// ABOUTME: Vector storage operations for SQLite
// ABOUTME: Implements vector storage as BLOB and cosine similarity search
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/harper/duet/internal/models"
)

// VectorStore handles embedded memory persistence
type VectorStore struct {
	db *DB
}

// NewVectorStore creates a new VectorStore
func NewVectorStore(db *DB) *VectorStore {
	return &VectorStore{db: db}
}

// Save stores a vector memory, assigning an id when missing
func (s *VectorStore) Save(ctx context.Context, v *models.VectorMemory) error {
	if v == nil || len(v.Embedding) == 0 {
		return fmt.Errorf("embedding cannot be empty")
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO vectors (id, conversation_id, text, source, original_type, sql_id, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector
	`, v.ID, v.Metadata.ConversationID, v.Text, v.Metadata.Source, string(v.Metadata.OriginalType),
		nullString(v.Metadata.SQLID), vectorToBlob(v.Embedding), toMillis(v.CreatedAt))
	return err
}

// Search ranks stored vectors by cosine similarity to query.
// An empty conversationID searches every conversation.
func (s *VectorStore) Search(ctx context.Context, query []float64, conversationID string, maxResults int) ([]models.VectorSearchResult, error) {
	sqlQuery := `SELECT id, conversation_id, text, source, original_type, sql_id, vector FROM vectors`
	var args []interface{}
	if conversationID != "" {
		sqlQuery += " WHERE conversation_id = ?"
		args = append(args, conversationID)
	}

	rows, err := s.db.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []models.VectorSearchResult

	for rows.Next() {
		var (
			result       models.VectorSearchResult
			originalType string
			sqlID        sql.NullString
			blob         []byte
		)
		if err := rows.Scan(&result.ID, &result.Metadata.ConversationID, &result.Text,
			&result.Metadata.Source, &originalType, &sqlID, &blob); err != nil {
			return nil, err
		}
		result.Metadata.OriginalType = models.MemoryType(originalType)
		if sqlID.Valid {
			result.Metadata.SQLID = sqlID.String
		}
		result.SimilarityScore = CosineSimilarity(query, blobToVector(blob))
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by similarity descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})

	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}

	return results, nil
}

// CountBySQLID returns how many vectors link to an episodic memory
func (s *VectorStore) CountBySQLID(ctx context.Context, sqlID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM vectors WHERE sql_id = ?", sqlID).Scan(&n)
	return n, err
}

// DeleteByConversation removes every vector for a conversation
func (s *VectorStore) DeleteByConversation(ctx context.Context, conversationID string) (int64, error) {
	result, err := s.db.Exec(ctx, "DELETE FROM vectors WHERE conversation_id = ?", conversationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// vectorToBlob converts a float64 slice to binary blob
func vectorToBlob(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to float64 slice
func blobToVector(blob []byte) []float64 {
	count := len(blob) / 8
	vector := make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(blob[i*8:])
		vector[i] = math.Float64frombits(bits)
	}
	return vector
}

// CosineSimilarity calculates cosine similarity between two vectors
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
