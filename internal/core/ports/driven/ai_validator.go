package driven

import "github.com/custodia-labs/handbook-rag/internal/core/domain"

// AIConfigValidator checks provider settings against the live provider
// before they are saved.
type AIConfigValidator interface {
	// ValidateEmbedding fails with domain.ErrEmbeddingUnavailable when the
	// provider cannot embed, or domain.ErrDimensionMismatch when its vectors
	// do not have the configured size.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateGenerator fails with domain.ErrGenerationUnavailable when the
	// generator cannot be reached. Disabled generation is valid.
	ValidateGenerator(config *domain.GenerationSettings) error
}
