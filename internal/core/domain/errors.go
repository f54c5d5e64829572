package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider, index or file type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrEmbeddingUnavailable indicates the embedding model or service could
	// not be reached or failed on the given input.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrEmbeddingTimeout indicates an embedding call exceeded its deadline.
	ErrEmbeddingTimeout = errors.New("embedding timeout")

	// ErrDimensionMismatch indicates a vector whose dimension differs from
	// the index dimension. Fatal at build and load time.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrModelVersionMismatch indicates an index built with a different
	// embedding model than the configured one. Fatal at build and load time.
	ErrModelVersionMismatch = errors.New("model version mismatch")

	// ErrGenerationUnavailable indicates the generation capability failed.
	// Callers report "answer temporarily unavailable" and never substitute
	// an answer of their own.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrIndexClosed indicates the vector index has been closed.
	ErrIndexClosed = errors.New("index closed")
)

// IsRetryableEmbedding reports whether err is an embedding failure that
// ingestion may retry with backoff.
func IsRetryableEmbedding(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrEmbeddingTimeout)
}
