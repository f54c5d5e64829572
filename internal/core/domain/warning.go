package domain

import "fmt"

// WarningKind classifies a data quality warning.
type WarningKind string

// Known data quality warnings.
const (
	// WarningEmptyDocument is raised for a document with no extractable text.
	WarningEmptyDocument WarningKind = "empty_document"

	// WarningOversizedUnit is raised for a single unit longer than the
	// maximum chunk size. The unit is kept as its own chunk.
	WarningOversizedUnit WarningKind = "oversized_unit"

	// WarningEmbeddingFailed is raised when a document is skipped after
	// embedding retries were exhausted.
	WarningEmbeddingFailed WarningKind = "embedding_failed"
)

// Warning is a non-fatal data quality issue found during ingestion.
// It is logged and reported; ingestion continues for other documents.
type Warning struct {
	Kind       WarningKind
	DocumentID string
	ChunkID    string
	Message    string
}

// Error implements error so warnings can travel through error values.
func (w Warning) Error() string {
	if w.ChunkID != "" {
		return fmt.Sprintf("%s: document %s chunk %s: %s", w.Kind, w.DocumentID, w.ChunkID, w.Message)
	}
	return fmt.Sprintf("%s: document %s: %s", w.Kind, w.DocumentID, w.Message)
}
