// Package embedding holds helpers shared by the embedder adapters.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// Classify wraps a provider failure in the matching domain error.
// Deadline expiry becomes domain.ErrEmbeddingTimeout, anything else
// domain.ErrEmbeddingUnavailable. Errors that already carry a domain
// embedding error are returned unchanged.
func Classify(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsRetryableEmbedding(err) || errors.Is(err, domain.ErrDimensionMismatch) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", provider, domain.ErrEmbeddingTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", provider, domain.ErrEmbeddingUnavailable, err)
}

// CheckDimensions verifies that every vector has the expected size.
func CheckDimensions(provider string, vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%s: vector %d has %d dimensions, expected %d: %w",
				provider, i, len(v), want, domain.ErrDimensionMismatch)
		}
	}
	return nil
}
