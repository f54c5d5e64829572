package pgvector

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// These tests need a Postgres server with the vector extension available.
// Set HANDBOOK_RAG_TEST_POSTGRES_DSN to run them.
func setupTestIndex(t *testing.T, dim int) *Index {
	t.Helper()
	dsn := os.Getenv("HANDBOOK_RAG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HANDBOOK_RAG_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("test_vectors_%d", time.Now().UnixNano())
	idx, err := New(ctx, Config{DSN: dsn, Table: table, Dimension: dim, ModelVersion: "m"})
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = idx.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s, %s", idx.table, idx.meta))
		_ = idx.Close()
	})
	return idx
}

func entry(id, docID string, vec ...float32) domain.IndexEntry {
	return domain.IndexEntry{ChunkID: id, Vector: vec, Metadata: domain.EntryMetadata{DocumentID: docID, Section: "general"}}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Dimension: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(ctx, Config{DSN: "postgres://localhost/x", Dimension: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(ctx, Config{DSN: "postgres://localhost/x", Dimension: 3, Table: "bad; DROP"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNormalise(t *testing.T) {
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, normalise([]float32{3, 4}), 1e-6)
	assert.Equal(t, []float32{0, 0}, normalise([]float32{0, 0}))
}

func TestIndex_BuildSearch(t *testing.T) {
	idx := setupTestIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Build(ctx, "model-a", []domain.IndexEntry{
		entry("b", "doc-1", 1, 0),
		entry("a", "doc-1", 2, 0),
		entry("c", "doc-2", 0, 1),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "b", hits[1].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)

	hits, err = idx.Search(ctx, []float32{1, 0}, 5, &domain.Filter{DocumentIDs: []string{"doc-2"}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].ChunkID)

	info, err := idx.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexInfo{ModelVersion: "model-a", Dimension: 2, Size: 3}, info)
}

func TestIndex_ReplaceDeleteSnapshot(t *testing.T) {
	idx := setupTestIndex(t, 2)
	ctx := context.Background()

	require.NoError(t, idx.Build(ctx, "m", []domain.IndexEntry{entry("a1", "doc-a", 1, 0), entry("b1", "doc-b", 0, 1)}))
	require.NoError(t, idx.ReplaceDocument(ctx, "doc-a", []domain.IndexEntry{entry("a2", "doc-a", 3, 4)}))
	require.NoError(t, idx.Delete(ctx, "b1"))
	require.NoError(t, idx.Upsert(ctx, entry("c1", "doc-c", 1, 1)))

	snap, err := idx.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "a2", snap.Entries[0].ChunkID)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, snap.Entries[0].Vector, 1e-6)
	assert.Equal(t, "c1", snap.Entries[1].ChunkID)

	assert.ErrorIs(t, idx.Upsert(ctx, entry("x", "d", 1, 2, 3)), domain.ErrDimensionMismatch)
}

func TestIndex_Has(t *testing.T) {
	idx := setupTestIndex(t, 2)
	ctx := context.Background()
	require.NoError(t, idx.Build(ctx, "m", []domain.IndexEntry{entry("a1", "doc-a", 1, 0), entry("b1", "doc-b", 0, 1)}))

	ok, err := idx.Has(ctx, []string{"a1", "b1", "a1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.Has(ctx, []string{"a1", "zz"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = idx.Has(ctx, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
