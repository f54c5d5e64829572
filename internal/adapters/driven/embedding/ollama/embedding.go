// Package ollama provides an Embedder backed by a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding"
	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/ollamaapi"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

var _ driven.Embedder = (*EmbeddingService)(nil)

const (
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768

	// DefaultMaxBatch bounds the inputs sent in one /api/embed call so a
	// large rebuild does not hold one huge request open on the server.
	DefaultMaxBatch = 64
)

const provider = "ollama"

// Config selects the server, model and expected vector size.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
	MaxBatch   int
}

// EmbeddingService embeds chunk and query text with an Ollama model.
type EmbeddingService struct {
	api        *ollamaapi.Client
	model      string
	dimensions int
	maxBatch   int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	// Truncate lets Ollama cut inputs longer than the model context
	// instead of failing the whole batch.
	Truncate bool `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewEmbeddingService creates an Ollama embedder, filling in defaults.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	return &EmbeddingService{
		api:        ollamaapi.New(cfg.BaseURL, cfg.Timeout),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   cfg.MaxBatch,
	}
}

// Embed embeds one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in order, splitting them into requests of at
// most MaxBatch inputs.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.maxBatch {
		end := min(start+s.maxBatch, len(texts))
		part, err := s.embed(ctx, texts[start:end])
		if err != nil {
			return nil, embedding.Classify(ctx, provider, err)
		}
		vectors = append(vectors, part...)
	}
	if err := embedding.CheckDimensions(provider, vectors, s.dimensions); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *EmbeddingService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out embedResponse
	req := embedRequest{Model: s.model, Input: texts, Truncate: true}
	if err := s.api.Post(ctx, "/api/embed", req, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("sent %d texts, got %d embeddings", len(texts), len(out.Embeddings))
	}
	return out.Embeddings, nil
}

// Dimensions returns the expected vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the model name stored with the index.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping checks that the server is up and the model has been pulled.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	ok, err := s.api.HasModel(ctx, s.model)
	if err != nil {
		return embedding.Classify(ctx, provider, err)
	}
	if !ok {
		return embedding.Classify(ctx, provider,
			fmt.Errorf("model %q is not pulled (run: ollama pull %s)", s.model, s.model))
	}
	return nil
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
