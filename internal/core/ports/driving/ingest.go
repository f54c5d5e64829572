package driving

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// IngestService turns documents into index entries.
type IngestService interface {
	// Ingest chunks, embeds and indexes docs. Each document is replaced
	// atomically; unchanged documents are skipped.
	Ingest(ctx context.Context, docs []domain.Document) (*IngestReport, error)

	// IngestRaw normalises raw documents and ingests them.
	IngestRaw(ctx context.Context, raws []domain.RawDocument) (*IngestReport, error)

	// Delete removes a document from the store and the index.
	Delete(ctx context.Context, documentID string) error
}

// IngestReport summarises an ingestion run.
type IngestReport struct {
	// Documents is the number of documents received.
	Documents int

	// Indexed is the number of documents chunked, embedded and published.
	Indexed int

	// Unchanged is the number of documents skipped because their content
	// was already indexed.
	Unchanged int

	// Failed lists documents skipped after an error.
	Failed []string

	// Chunks is the number of chunks published.
	Chunks int

	// Warnings are the data quality issues found.
	Warnings []domain.Warning
}

// IndexService manages the process-lifetime index.
type IndexService interface {
	// Open loads or builds the index. It must be called before serving.
	Open(ctx context.Context) error

	// Rebuild re-embeds every stored chunk and publishes a fresh index.
	Rebuild(ctx context.Context) (*domain.IndexInfo, error)

	// Stats reports the live index state.
	Stats(ctx context.Context) (*IndexStats, error)

	// Flush persists the current index if this process changed it.
	Flush(ctx context.Context) error

	// Close flushes any changes and releases the index.
	Close(ctx context.Context) error
}

// IndexStats describes the index and its stored corpus.
type IndexStats struct {
	Info      domain.IndexInfo
	Documents int
	Embedder  string

	// EmbedderDimension is the vector size the configured embedder produces.
	EmbedderDimension int
}
