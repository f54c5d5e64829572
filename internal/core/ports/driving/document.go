package driving

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// DocumentService exposes the stored corpus.
type DocumentService interface {
	// List returns all ingested documents.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Chunks returns the chunks of a document in order.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}
