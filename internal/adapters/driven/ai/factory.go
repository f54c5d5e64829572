// Package ai provides factory functions that build the embedding, generation
// and vector index adapters selected by the settings.
package ai

import (
	"context"
	"fmt"

	rediscache "github.com/custodia-labs/handbook-rag/internal/adapters/driven/cache/redis"
	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding/cached"
	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding/hashing"
	hugotembed "github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding/hugot"
	ollamaembed "github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/custodia-labs/handbook-rag/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/handbook-rag/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/vectorindex/pgvector"
	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// InitResult contains the adapters built from the settings.
type InitResult struct {
	Embedder    driven.Embedder
	Generator   driven.Generator // nil when generation is disabled
	VectorIndex driven.VectorIndex
	Warnings    []string // Non-fatal issues that caused fallback.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.Embedder != nil {
		r.Embedder.Close()
	}
	if r.VectorIndex != nil {
		r.VectorIndex.Close()
	}
	if r.Generator != nil {
		r.Generator.Close()
	}
}

// Init builds every adapter the engine needs. Embedder and index failures
// are fatal. A generator or cache that cannot be reached is reported in
// Warnings and left out.
func Init(ctx context.Context, settings *domain.Settings) (*InitResult, error) {
	result := &InitResult{}

	embedder, err := CreateEmbedder(&settings.Embedding)
	if err != nil {
		return nil, err
	}

	if settings.Cache.Enabled() {
		cache, err := CreateEmbeddingCache(ctx, &settings.Cache)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("embedding cache disabled: %v", err))
		} else {
			embedder = cached.New(embedder, cache)
		}
	}
	result.Embedder = embedder

	index, err := CreateVectorIndex(ctx, &settings.Index, embedder.ModelName(), embedder.Dimensions())
	if err != nil {
		embedder.Close()
		return nil, err
	}
	result.VectorIndex = index

	generator, err := CreateGenerator(&settings.Generation)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("answer generation disabled: %v", err))
	} else {
		result.Generator = generator
	}

	for _, w := range result.Warnings {
		logger.Warn("%s", w)
	}
	return result, nil
}

// CreateEmbedder creates the embedder selected by settings.
func CreateEmbedder(settings *domain.EmbeddingSettings) (driven.Embedder, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: embedding settings are required", domain.ErrInvalidInput)
	}

	model := settings.Model
	if model == "" {
		model = domain.DefaultEmbeddingModels()[settings.Provider]
	}
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[model]
	}

	switch settings.Provider {
	case domain.EmbeddingProviderHashing:
		return hashing.NewEmbeddingService(hashing.Config{Model: model, Dimensions: dimensions}), nil

	case domain.EmbeddingProviderHugot:
		svc, err := hugotembed.NewEmbeddingService(hugotembed.Config{
			Model:      model,
			ModelDir:   settings.ModelDir,
			Dimensions: dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		return svc, nil

	case domain.EmbeddingProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      model,
			Dimensions: dimensions,
		}), nil

	case domain.EmbeddingProviderOpenAI:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      model,
			Dimensions: settings.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

// CreateEmbeddingCache connects to the Redis embedding cache.
func CreateEmbeddingCache(ctx context.Context, settings *domain.CacheSettings) (driven.EmbeddingCache, error) {
	cache, err := rediscache.New(ctx, rediscache.Config{
		Addr:     settings.RedisAddr,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
		TTL:      settings.TTL,
	})
	if err != nil {
		return nil, err
	}
	return cache, nil
}

// CreateGenerator creates the generator selected by settings.
// Returns nil without error when generation is disabled.
func CreateGenerator(settings *domain.GenerationSettings) (driven.Generator, error) {
	if settings == nil || settings.Provider == domain.GeneratorProviderNone {
		return nil, nil
	}

	model := settings.Model
	if model == "" {
		model = domain.DefaultGeneratorModels()[settings.Provider]
	}

	switch settings.Provider {
	case domain.GeneratorProviderOllama:
		return ollamallm.NewGenerator(ollamallm.Config{
			BaseURL: settings.BaseURL,
			Model:   model,
			Timeout: settings.Timeout,
		}), nil

	case domain.GeneratorProviderOpenAI:
		svc, err := openaillm.NewGenerator(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   model,
			Timeout: settings.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("%w: generator provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

// CreateVectorIndex creates the index backend selected by settings, sized
// for the embedder.
func CreateVectorIndex(ctx context.Context, settings *domain.IndexSettings, modelVersion string, dimensions int) (driven.VectorIndex, error) {
	switch settings.Backend {
	case domain.IndexBackendFlat, "":
		return flat.New(flat.Config{ModelVersion: modelVersion, Dimension: dimensions}), nil

	case domain.IndexBackendPgvector:
		idx, err := pgvector.New(ctx, pgvector.Config{
			DSN:          settings.PostgresDSN,
			Dimension:    dimensions,
			ModelVersion: modelVersion,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("%w: index backend %q", domain.ErrUnsupportedType, settings.Backend)
	}
}
