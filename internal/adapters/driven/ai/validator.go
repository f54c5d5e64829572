package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// DefaultValidateTimeout bounds each provider check.
const DefaultValidateTimeout = 10 * time.Second

// probeText is embedded once to learn the real vector size.
const probeText = "When is tuition due?"

// ConfigValidator builds the configured providers and checks them before
// settings are saved, so a bad model or key fails at `settings set` rather
// than halfway through an ingest.
type ConfigValidator struct {
	timeout time.Duration
}

// NewConfigValidator creates a validator with DefaultValidateTimeout.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{timeout: DefaultValidateTimeout}
}

// ValidateEmbedding pings the embedder and embeds a probe. A vector whose
// size differs from the configured dimensions fails with
// domain.ErrDimensionMismatch: indexing with it would corrupt the index.
func (v *ConfigValidator) ValidateEmbedding(settings *domain.EmbeddingSettings) error {
	embedder, err := CreateEmbedder(settings)
	if err != nil {
		return err
	}
	defer embedder.Close()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	if err := embedder.Ping(ctx); err != nil {
		return asEmbeddingUnavailable(err)
	}
	vec, err := embedder.Embed(ctx, probeText)
	if err != nil {
		return asEmbeddingUnavailable(err)
	}
	if len(vec) != embedder.Dimensions() {
		return fmt.Errorf("%w: %s returns %d dimensions, settings say %d",
			domain.ErrDimensionMismatch, embedder.ModelName(), len(vec), embedder.Dimensions())
	}
	return nil
}

// ValidateGenerator pings the generator. Disabled generation is valid.
func (v *ConfigValidator) ValidateGenerator(settings *domain.GenerationSettings) error {
	generator, err := CreateGenerator(settings)
	if err != nil {
		return err
	}
	if generator == nil {
		return nil
	}
	defer generator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()
	return generator.Ping(ctx)
}

func asEmbeddingUnavailable(err error) error {
	if domain.IsRetryableEmbedding(err) || errors.Is(err, domain.ErrDimensionMismatch) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
}
