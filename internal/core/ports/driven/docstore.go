package driven

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// It is the side lookup the retriever uses to attach chunk text to hits.
type DocumentStore interface {
	// ReplaceDocument stores doc and atomically replaces all of its chunks.
	ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document ordered by ordinal.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetChunksByIDs retrieves the chunks that exist among ids.
	// Missing ids are skipped.
	GetChunksByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error)

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns all documents ordered by ID.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// ListChunks streams every stored chunk ordered by document and
	// ordinal. Used to rebuild the index.
	ListChunks(ctx context.Context, fn func(chunk *domain.Chunk) error) error
}
