package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	return store
}

func testDocument(id string) *domain.Document {
	return &domain.Document{
		ID:          id,
		Title:       "Title " + id,
		URI:         "https://handbook.example.edu/" + id,
		Section:     "student-services",
		Content:     "Content of " + id,
		ContentHash: "hash-" + id,
		ModifiedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Metadata:    map[string]any{"lang": "en"},
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:          fmt.Sprintf("%s-chunk-%d", docID, i),
			DocumentID:  docID,
			Ordinal:     i,
			Offset:      i * 10,
			Content:     fmt.Sprintf("chunk %d of %s", i, docID),
			Length:      12,
			HeadingPath: []string{"Services", "Library"},
			Section:     "student-services",
			Embedding:   []float32{float32(i), 0.5},
			Metadata:    map[string]any{"n": float64(i)},
		}
	}
	return chunks
}

// ==================== Store Creation Tests ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())
	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.DocumentStore().ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", 1)))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.DocumentStore().GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Title doc-1", doc.Title)
}

func TestStore_SchemaVersion(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	v, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, store.Close())

	// reopening must not apply 001 a second time
	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	var rows int
	require.NoError(t, reopened.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestPending(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.up.sql":    {Data: []byte("SELECT 1;")},
		"002_second.up.sql":   {Data: []byte("SELECT 1;")},
		"001_initial.up.sql":  {Data: []byte("SELECT 1;")},
		"002_second.down.sql": {Data: []byte("SELECT 1;")},
		"notes.up.sql":        {Data: []byte("SELECT 1;")},
	}

	todo, err := pending(fsys, 1)
	require.NoError(t, err)
	require.Len(t, todo, 2)
	assert.Equal(t, migration{version: 2, name: "002_second.up.sql"}, todo[0])
	assert.Equal(t, 10, todo[1].version)
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.migrate(ctx, fstest.MapFS{
		"002_broken.up.sql": {Data: []byte("CREATE TABLE extra (id INTEGER); NOT SQL;")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_broken.up.sql")

	v, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// ==================== Document Store Tests ====================

func TestDocumentStore_ReplaceAndGet(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	doc := testDocument("doc-1")
	require.NoError(t, store.ReplaceDocument(ctx, doc, testChunks("doc-1", 3)))

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.URI, got.URI)
	assert.Equal(t, doc.Section, got.Section)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.True(t, doc.ModifiedAt.Equal(got.ModifiedAt), "modified at %v", got.ModifiedAt)
	assert.Equal(t, "en", got.Metadata["lang"])
	assert.False(t, got.CreatedAt.IsZero())

	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, i*10, c.Offset)
		assert.Equal(t, []string{"Services", "Library"}, c.HeadingPath)
		assert.Equal(t, []float32{float32(i), 0.5}, c.Embedding)
		assert.Equal(t, float64(i), c.Metadata["n"])
	}
}

func TestDocumentStore_ReplaceSwapsChunks(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", 3)))

	replacement := []domain.Chunk{{ID: "new", DocumentID: "doc-1", Content: "fresh", Length: 5, Oversized: true}}
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), replacement))

	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new", chunks[0].ID)
	assert.True(t, chunks[0].Oversized)

	_, err = store.GetChunk(ctx, "doc-1-chunk-0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ReplaceKeepsCreatedAt(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	first := testDocument("doc-1")
	first.CreatedAt = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.ReplaceDocument(ctx, first, nil))

	second := testDocument("doc-1")
	second.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second.Title = "Renamed"
	require.NoError(t, store.ReplaceDocument(ctx, second, nil))

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
}

func TestDocumentStore_ReplaceRejectsForeignChunk(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()

	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", 2)))

	err := store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-2", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2, "failed replace must roll back")
}

func TestDocumentStore_GetChunk(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", 2)))

	chunk, err := store.GetChunk(ctx, "doc-1-chunk-1")
	require.NoError(t, err)
	assert.Equal(t, "chunk 1 of doc-1", chunk.Content)

	_, err = store.GetChunk(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_GetChunksByIDs(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", 3)))

	got, err := store.GetChunksByIDs(ctx, []string{"doc-1-chunk-0", "missing", "doc-1-chunk-2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "doc-1-chunk-0")
	assert.Contains(t, got, "doc-1-chunk-2")

	empty, err := store.GetChunksByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDocumentStore_GetChunksByIDs_LargeBatch(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", maxQueryParams+20)))

	ids := make([]string, maxQueryParams+20)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc-1-chunk-%d", i)
	}

	got, err := store.GetChunksByIDs(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, got, len(ids))
}

func TestDocumentStore_DeleteDocument(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", 2)))

	require.NoError(t, store.DeleteDocument(ctx, "doc-1"))

	_, err := store.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	chunks, err := store.GetChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	assert.ErrorIs(t, store.DeleteDocument(ctx, "doc-1"), domain.ErrNotFound)
}

func TestDocumentStore_ListDocumentsAndChunks(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-b"), testChunks("doc-b", 2)))
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-a"), testChunks("doc-a", 1)))

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-a", docs[0].ID)
	assert.Equal(t, "doc-b", docs[1].ID)

	var ids []string
	err = store.ListChunks(ctx, func(c *domain.Chunk) error {
		ids = append(ids, c.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a-chunk-0", "doc-b-chunk-0", "doc-b-chunk-1"}, ids)
}

func TestDocumentStore_ListChunks_StopsOnError(t *testing.T) {
	store := setupTestStore(t).DocumentStore()
	ctx := context.Background()
	require.NoError(t, store.ReplaceDocument(ctx, testDocument("doc-1"), testChunks("doc-1", 3)))

	stop := fmt.Errorf("stop")
	calls := 0
	err := store.ListChunks(ctx, func(*domain.Chunk) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

// ==================== Index Store Tests ====================

func TestIndexStore_LoadMissing(t *testing.T) {
	store := setupTestStore(t).IndexStore()

	_, err := store.LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexStore_SaveLoad(t *testing.T) {
	store := setupTestStore(t).IndexStore()
	ctx := context.Background()

	snap := &domain.IndexSnapshot{
		ModelVersion: "hashing-v1",
		Dimension:    2,
		Entries: []domain.IndexEntry{
			{ChunkID: "b", Vector: []float32{0, 1}, Metadata: domain.EntryMetadata{DocumentID: "doc-1", Ordinal: 1, Length: 30, Section: "exams"}},
			{ChunkID: "a", Vector: []float32{1, 0}, Metadata: domain.EntryMetadata{DocumentID: "doc-1", Length: 20,
				ModifiedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}},
		},
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hashing-v1", got.ModelVersion)
	assert.Equal(t, 2, got.Dimension)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, "a", got.Entries[0].ChunkID)
	assert.Equal(t, []float32{1, 0}, got.Entries[0].Vector)
	assert.True(t, got.Entries[0].Metadata.ModifiedAt.Equal(snap.Entries[1].Metadata.ModifiedAt))
	assert.Equal(t, "b", got.Entries[1].ChunkID)
	assert.Equal(t, "exams", got.Entries[1].Metadata.Section)
	assert.True(t, got.Entries[1].Metadata.ModifiedAt.IsZero())
}

func TestIndexStore_SaveReplaces(t *testing.T) {
	store := setupTestStore(t).IndexStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, &domain.IndexSnapshot{ModelVersion: "m1", Dimension: 1,
		Entries: []domain.IndexEntry{{ChunkID: "a", Vector: []float32{1}}}}))
	require.NoError(t, store.SaveSnapshot(ctx, &domain.IndexSnapshot{ModelVersion: "m2", Dimension: 2}))

	got, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m2", got.ModelVersion)
	assert.Empty(t, got.Entries)
}

func TestIndexStore_SaveRejectsDimensionMismatch(t *testing.T) {
	store := setupTestStore(t).IndexStore()
	err := store.SaveSnapshot(context.Background(), &domain.IndexSnapshot{ModelVersion: "m", Dimension: 2,
		Entries: []domain.IndexEntry{{ChunkID: "a", Vector: []float32{1}}}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestIndexStore_Clear(t *testing.T) {
	store := setupTestStore(t).IndexStore()
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, &domain.IndexSnapshot{ModelVersion: "m", Dimension: 1,
		Entries: []domain.IndexEntry{{ChunkID: "a", Vector: []float32{1}}}}))
	require.NoError(t, store.ClearSnapshot(ctx))

	_, err := store.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
