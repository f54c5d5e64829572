package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/postprocessors/chunker"
)

// ChunkerName is the registry name of the sentence-aligned chunker.
const ChunkerName = "chunker"

// RegisterDefaults registers the built-in processors.
func RegisterDefaults(r *Registry) error {
	return r.Register(ChunkerName, buildChunker)
}

// NewDefaultPipeline builds the standard pipeline from chunking settings.
func NewDefaultPipeline(settings domain.ChunkingSettings) (*Pipeline, error) {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		return nil, err
	}
	return r.BuildPipeline(settings, ChunkerName)
}

// buildChunker creates the chunker. A zero size keeps the chunker default.
func buildChunker(settings domain.ChunkingSettings) (driven.PostProcessor, error) {
	if settings.MaxChunkSize < 0 || settings.OverlapUnits < 0 {
		return nil, fmt.Errorf("%w: chunk size %d, overlap %d",
			domain.ErrInvalidInput, settings.MaxChunkSize, settings.OverlapUnits)
	}

	return chunker.New(
		chunker.WithMaxChunkSize(settings.MaxChunkSize),
		chunker.WithOverlapUnits(settings.OverlapUnits),
	), nil
}
