package domain

import (
	"errors"
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// EmbeddingProvider identifies an embedding backend.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderHashing is the offline lexical feature-hashing model.
	EmbeddingProviderHashing EmbeddingProvider = "hashing"

	// EmbeddingProviderHugot is a local sentence-transformer run in process.
	EmbeddingProviderHugot EmbeddingProvider = "hugot"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"

	// EmbeddingProviderOpenAI is the OpenAI API or a compatible endpoint.
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderHashing, EmbeddingProviderHugot, EmbeddingProviderOllama, EmbeddingProviderOpenAI:
		return true
	default:
		return false
	}
}

// IsLocal returns true if the provider runs without network access.
func (p EmbeddingProvider) IsLocal() bool {
	return p == EmbeddingProviderHashing || p == EmbeddingProviderHugot
}

// String returns the string representation.
func (p EmbeddingProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingProviderHashing:
		return "Hashing (offline lexical model)"
	case EmbeddingProviderHugot:
		return "Hugot (local sentence-transformer)"
	case EmbeddingProviderOllama:
		return "Ollama (local server)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// AllEmbeddingProviders returns every embedding provider, offline first.
func AllEmbeddingProviders() []EmbeddingProvider {
	return []EmbeddingProvider{
		EmbeddingProviderHashing,
		EmbeddingProviderHugot,
		EmbeddingProviderOllama,
		EmbeddingProviderOpenAI,
	}
}

// GeneratorProvider identifies an answer generation backend.
type GeneratorProvider string

// Available generator providers.
const (
	// GeneratorProviderNone disables answer generation; only prompts are produced.
	GeneratorProviderNone GeneratorProvider = ""

	// GeneratorProviderOllama is a local Ollama instance.
	GeneratorProviderOllama GeneratorProvider = "ollama"

	// GeneratorProviderOpenAI is the OpenAI API or a compatible endpoint.
	GeneratorProviderOpenAI GeneratorProvider = "openai"
)

// IsValid returns true if the provider is recognised.
func (p GeneratorProvider) IsValid() bool {
	switch p {
	case GeneratorProviderNone, GeneratorProviderOllama, GeneratorProviderOpenAI:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (p GeneratorProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p GeneratorProvider) Description() string {
	switch p {
	case GeneratorProviderNone:
		return "None (prompt only)"
	case GeneratorProviderOllama:
		return "Ollama (local server)"
	case GeneratorProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// AllGeneratorProviders returns every generator provider, disabled first.
func AllGeneratorProviders() []GeneratorProvider {
	return []GeneratorProvider{
		GeneratorProviderNone,
		GeneratorProviderOllama,
		GeneratorProviderOpenAI,
	}
}

// IndexBackend identifies a vector index implementation.
type IndexBackend string

// Available index backends.
const (
	// IndexBackendFlat is the in-process exact scan.
	IndexBackendFlat IndexBackend = "flat"

	// IndexBackendPgvector stores vectors in Postgres with pgvector.
	IndexBackendPgvector IndexBackend = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (b IndexBackend) IsValid() bool {
	return b == IndexBackendFlat || b == IndexBackendPgvector
}

// ChunkingSettings controls how documents are split.
type ChunkingSettings struct {
	// MaxChunkSize is the maximum chunk length in runes.
	MaxChunkSize int

	// OverlapUnits is the number of trailing units repeated at the start
	// of the next chunk.
	OverlapUnits int
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding backend.
	Provider EmbeddingProvider

	// Model is the model name.
	Model string

	// Dimensions is the vector size. Zero lets the provider decide.
	Dimensions int

	// BaseURL is the API endpoint for remote providers.
	BaseURL string

	// APIKey is the API key for OpenAI.
	APIKey string

	// ModelDir is where local models are stored (hugot).
	ModelDir string
}

// IndexSettings holds vector index configuration.
type IndexSettings struct {
	// Backend selects the index implementation.
	Backend IndexBackend

	// PostgresDSN is the connection string for the pgvector backend.
	PostgresDSN string
}

// RetrievalSettings holds query-time ranking configuration.
type RetrievalSettings struct {
	// TopK is the default number of chunks returned.
	TopK int

	// OverFetch multiplies TopK when querying the index.
	OverFetch int

	// MinScore is the minimum cosine similarity a chunk must reach.
	MinScore float64

	// QueryTimeout bounds query embedding.
	QueryTimeout time.Duration

	// LexicalBoost is the weight of the query term overlap bonus.
	LexicalBoost float64

	// RecencyBoost is the weight of the freshness bonus.
	RecencyBoost float64

	// RecencyHalfLife is the age at which the freshness bonus halves.
	RecencyHalfLife time.Duration
}

// PromptSettings holds prompt assembly configuration.
type PromptSettings struct {
	// MaxContextChars is the character budget of an assembled prompt.
	MaxContextChars int
}

// GenerationSettings holds answer generation configuration.
type GenerationSettings struct {
	// Provider is the generation backend. Empty disables generation.
	Provider GeneratorProvider

	// Model is the model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key for OpenAI.
	APIKey string

	// Timeout bounds a single generation call.
	Timeout time.Duration
}

// IngestionSettings controls the ingestion pipeline.
type IngestionSettings struct {
	// Workers is the number of documents processed concurrently.
	Workers int

	// BatchSize is the number of chunks per embedding call.
	BatchSize int

	// RequestsPerSecond paces embedding calls. Zero means unlimited.
	RequestsPerSecond float64

	// MaxRetries is the number of retries for a failed embedding batch.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration
}

// CacheSettings configures the embedding cache.
type CacheSettings struct {
	// RedisAddr enables the Redis embedding cache when set.
	RedisAddr string

	// RedisPassword authenticates against Redis.
	RedisPassword string

	// RedisDB selects the Redis database.
	RedisDB int

	// TTL is the lifetime of cached embeddings. Zero keeps them forever.
	TTL time.Duration
}

// Enabled reports whether the cache is configured.
func (c CacheSettings) Enabled() bool {
	return c.RedisAddr != ""
}

// Settings holds all engine settings.
type Settings struct {
	Chunking   ChunkingSettings
	Embedding  EmbeddingSettings
	Index      IndexSettings
	Retrieval  RetrievalSettings
	Prompt     PromptSettings
	Generation GenerationSettings
	Ingestion  IngestionSettings
	Cache      CacheSettings
}

// DefaultSettings returns settings that work offline out of the box.
func DefaultSettings() Settings {
	return Settings{
		Chunking: ChunkingSettings{
			MaxChunkSize: 1200,
			OverlapUnits: 1,
		},
		Embedding: EmbeddingSettings{
			Provider:   EmbeddingProviderHashing,
			Model:      "hashing-v1",
			Dimensions: 4096,
		},
		Index: IndexSettings{
			Backend: IndexBackendFlat,
		},
		Retrieval: RetrievalSettings{
			TopK:            5,
			OverFetch:       4,
			MinScore:        0.3,
			QueryTimeout:    10 * time.Second,
			LexicalBoost:    0.1,
			RecencyBoost:    0.05,
			RecencyHalfLife: 365 * 24 * time.Hour,
		},
		Prompt: PromptSettings{
			MaxContextChars: 6000,
		},
		Generation: GenerationSettings{
			Provider: GeneratorProviderNone,
			Timeout:  2 * time.Minute,
		},
		Ingestion: IngestionSettings{
			Workers:        4,
			BatchSize:      32,
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[EmbeddingProvider]string {
	return map[EmbeddingProvider]string{
		EmbeddingProviderHashing: "hashing-v1",
		EmbeddingProviderHugot:   "sentence-transformers/all-MiniLM-L6-v2",
		EmbeddingProviderOllama:  "nomic-embed-text",
		EmbeddingProviderOpenAI:  "text-embedding-3-small",
	}
}

// DefaultGeneratorModels returns default models for each generator provider.
func DefaultGeneratorModels() map[GeneratorProvider]string {
	return map[GeneratorProvider]string{
		GeneratorProviderOllama: "llama3.2",
		GeneratorProviderOpenAI: "gpt-4o-mini",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"hashing-v1":                             4096,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"nomic-embed-text":                       768,
		"mxbai-embed-large":                      1024,
		"all-minilm":                             384,
		"text-embedding-3-small":                 1536,
		"text-embedding-3-large":                 3072,
		"text-embedding-ada-002":                 1536,
	}
}

// Validate checks that the settings are usable.
// All problems are reported together.
func (s *Settings) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...))
	}

	if s.Chunking.MaxChunkSize <= 0 {
		invalid("chunking.max_chunk_size must be positive")
	}
	if s.Chunking.OverlapUnits < 0 {
		invalid("chunking.overlap_units must not be negative")
	}
	if !s.Embedding.Provider.IsValid() {
		invalid("unknown embedding provider %q", s.Embedding.Provider)
	}
	if s.Embedding.Provider == EmbeddingProviderOpenAI && s.Embedding.APIKey == "" && s.Embedding.BaseURL == "" {
		invalid("embedding.api_key required for %s", s.Embedding.Provider)
	}
	if s.Embedding.Dimensions < 0 {
		invalid("embedding.dimensions must not be negative")
	}
	if !s.Index.Backend.IsValid() {
		invalid("unknown index backend %q", s.Index.Backend)
	}
	if s.Index.Backend == IndexBackendPgvector && s.Index.PostgresDSN == "" {
		invalid("index.postgres_dsn required for %s", s.Index.Backend)
	}
	if s.Retrieval.TopK <= 0 {
		invalid("retrieval.top_k must be positive")
	}
	if s.Retrieval.OverFetch < 1 {
		invalid("retrieval.over_fetch must be at least 1")
	}
	if s.Retrieval.MinScore < -1 || s.Retrieval.MinScore > 1 {
		invalid("retrieval.min_score must be within [-1, 1]")
	}
	if s.Retrieval.LexicalBoost < 0 || s.Retrieval.RecencyBoost < 0 {
		invalid("retrieval boosts must not be negative")
	}
	if s.Prompt.MaxContextChars <= 0 {
		invalid("prompt.max_context_chars must be positive")
	}
	if !s.Generation.Provider.IsValid() {
		invalid("unknown generator provider %q", s.Generation.Provider)
	}
	if s.Ingestion.Workers <= 0 {
		invalid("ingestion.workers must be positive")
	}
	if s.Ingestion.BatchSize <= 0 {
		invalid("ingestion.batch_size must be positive")
	}
	if s.Ingestion.MaxRetries < 0 {
		invalid("ingestion.max_retries must not be negative")
	}

	return errors.Join(errs...)
}
