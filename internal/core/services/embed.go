package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// batchEmbedder embeds chunk texts in paced, retried batches.
// It is shared by ingestion and index rebuilds.
type batchEmbedder struct {
	embedder driven.Embedder
	limiter  *rate.Limiter
	settings domain.IngestionSettings
}

func newBatchEmbedder(embedder driven.Embedder, settings domain.IngestionSettings) *batchEmbedder {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if settings.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), 1)
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = domain.DefaultSettings().Ingestion.BatchSize
	}
	return &batchEmbedder{embedder: embedder, limiter: limiter, settings: settings}
}

// embed returns one vector per text, in order. Retryable failures are
// retried with exponential backoff; once retries are exhausted the last
// error is returned and still satisfies domain.IsRetryableEmbedding.
func (b *batchEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.settings.BatchSize {
		end := min(start+b.settings.BatchSize, len(texts))
		batch, err := b.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (b *batchEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.settings.InitialBackoff
	policy.MaxInterval = b.settings.MaxBackoff
	policy.MaxElapsedTime = 0

	retries := uint64(0)
	if b.settings.MaxRetries > 0 {
		retries = uint64(b.settings.MaxRetries)
	}

	var vectors [][]float32
	operation := func() error {
		if err := b.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		out, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if domain.IsRetryableEmbedding(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(out) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: %d vectors for %d texts",
				domain.ErrEmbeddingUnavailable, len(out), len(texts)))
		}
		for _, v := range out {
			if len(v) != b.embedder.Dimensions() {
				return backoff.Permanent(fmt.Errorf("%w: embedder returned %d dimensions, expected %d",
					domain.ErrDimensionMismatch, len(v), b.embedder.Dimensions()))
			}
		}
		vectors = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("Embedding batch failed, retrying in %s: %v", wait, err)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify); err != nil {
		return nil, err
	}
	return vectors, nil
}
