package driving

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// RetrievalService answers a free-text query with the most relevant chunks.
type RetrievalService interface {
	// Retrieve returns ranked chunks for query. An empty result means
	// nothing cleared the relevance threshold and is not an error.
	Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.RetrievalResult, error)
}

// PromptService assembles bounded prompts for a generator.
type PromptService interface {
	// Assemble builds a prompt from query and result within maxChars.
	// maxChars <= 0 uses the configured budget.
	Assemble(query string, result *domain.RetrievalResult, maxChars int) (string, error)
}

// AnswerService runs retrieval, prompt assembly and generation.
type AnswerService interface {
	// Ask answers query. Generation failures wrap domain.ErrGenerationUnavailable.
	Ask(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.Answer, error)
}
