package driven

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// VectorIndex stores embedding vectors and answers similarity queries.
//
// Readers never observe a partially written entry. Build and
// ReplaceDocument are published atomically: a concurrent Search sees either
// the complete old state or the complete new state.
//
// Every vector must match the index dimension; a mismatch is rejected
// with domain.ErrDimensionMismatch.
type VectorIndex interface {
	// Build replaces the whole index with entries in one atomic step.
	// modelVersion tags the new contents.
	Build(ctx context.Context, modelVersion string, entries []domain.IndexEntry) error

	// Upsert inserts or replaces a single entry.
	Upsert(ctx context.Context, entry domain.IndexEntry) error

	// ReplaceDocument atomically swaps every entry of documentID for entries.
	// An empty entries slice removes the document.
	ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error

	// Delete removes one entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, chunkID string) error

	// Search returns up to k entries ranked by cosine similarity, ties
	// broken by chunk id ascending. k <= 0 yields an empty result and a k
	// larger than the index yields every matching entry.
	Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]VectorHit, error)

	// Has reports whether every one of chunkIDs is in the index.
	Has(ctx context.Context, chunkIDs []string) (bool, error)

	// Info reports the model version, dimension and size.
	Info(ctx context.Context) (domain.IndexInfo, error)

	// Snapshot returns the persisted form of the current contents,
	// entries ordered by chunk id.
	Snapshot(ctx context.Context) (*domain.IndexSnapshot, error)

	// Close releases resources. Later calls fail with domain.ErrIndexClosed.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (-1 to 1).
	Similarity float64

	// Metadata is the entry metadata stored with the vector.
	Metadata domain.EntryMetadata
}

// IndexStore persists index snapshots between runs.
type IndexStore interface {
	// SaveSnapshot replaces the stored snapshot.
	SaveSnapshot(ctx context.Context, snapshot *domain.IndexSnapshot) error

	// LoadSnapshot returns the stored snapshot or domain.ErrNotFound.
	LoadSnapshot(ctx context.Context) (*domain.IndexSnapshot, error)

	// ClearSnapshot removes the stored snapshot.
	ClearSnapshot(ctx context.Context) error
}
