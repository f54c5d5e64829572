package driven

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// PostProcessor is one stage of chunking. The first stage receives nil and
// splits doc.Content; later stages may rewrite or drop the chunks they get.
type PostProcessor interface {
	// Name identifies the stage in settings and error messages.
	Name() string

	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline turns a normalised document into chunks ready for
// embedding: non-blank, stamped with the document id, with unique ids and
// ordinals numbered from zero.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
