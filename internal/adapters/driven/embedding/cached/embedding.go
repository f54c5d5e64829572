// Package cached wraps an Embedder with a shared embedding cache.
package cached

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.Embedder = (*EmbeddingService)(nil)

// EmbeddingService serves embeddings from a cache and falls back to the
// wrapped embedder on a miss. Cache failures are logged and never fail
// the embedding call.
type EmbeddingService struct {
	inner driven.Embedder
	cache driven.EmbeddingCache
}

// New wraps inner with cache. A nil cache returns inner unchanged.
func New(inner driven.Embedder, cache driven.EmbeddingCache) driven.Embedder {
	if cache == nil {
		return inner
	}
	return &EmbeddingService{inner: inner, cache: cache}
}

// Embed returns the cached vector for text or computes and stores it.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds only the texts missing from the cache, in one call to
// the wrapped embedder.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	model := s.inner.ModelName()
	dims := s.inner.Dimensions()
	out := make([][]float32, len(texts))

	var missing []int
	for i, text := range texts {
		vec, found, err := s.cache.Get(ctx, model, text)
		if err != nil {
			logger.Warn("embedding cache read failed: %v", err)
		}
		if found && len(vec) == dims {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}

	if len(missing) == 0 {
		logger.Debug("Embedding cache: %d/%d hits", len(texts), len(texts))
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}

	vecs, err := s.inner.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}

	for j, i := range missing {
		out[i] = vecs[j]
		if err := s.cache.Set(ctx, model, texts[i], vecs[j]); err != nil {
			logger.Warn("embedding cache write failed: %v", err)
		}
	}

	logger.Debug("Embedding cache: %d/%d hits", len(texts)-len(missing), len(texts))
	return out, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the wrapped embedder's model version.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Ping checks the wrapped embedder.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the cache and the wrapped embedder.
func (s *EmbeddingService) Close() error {
	cacheErr := s.cache.Close()
	if err := s.inner.Close(); err != nil {
		return err
	}
	return cacheErr
}
