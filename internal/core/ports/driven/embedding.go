package driven

import "context"

// Embedder generates vector embeddings from text.
//
// Vectors returned by one Embedder always have Dimensions() elements.
// Failures wrap domain.ErrEmbeddingUnavailable; an expired context
// deadline wraps domain.ErrEmbeddingTimeout.
//
// Implementations include:
//   - Hashing (offline lexical feature hashing)
//   - Hugot (local sentence-transformer)
//   - Ollama (nomic-embed-text, all-minilm)
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// The result has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size (e.g., 384, 1536, 4096).
	// This is determined by the model and must match the VectorIndex.
	Dimensions() int

	// ModelName returns the model version tag stored with the index.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingCache stores embeddings keyed by model and text.
type EmbeddingCache interface {
	// Get returns the cached vector and whether it was found.
	Get(ctx context.Context, model, text string) ([]float32, bool, error)

	// Set stores a vector.
	Set(ctx context.Context, model, text string, vector []float32) error

	// Close releases resources.
	Close() error
}
