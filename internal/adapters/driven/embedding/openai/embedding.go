// Package openai embeds text through the OpenAI embeddings endpoint or any
// server that speaks the same API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding"
	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

var _ driven.Embedder = (*EmbeddingService)(nil)

const (
	DefaultBaseURL  = "https://api.openai.com/v1/"
	DefaultModel    = "text-embedding-3-small"
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBatch = 256

	// fallbackDimensions is assumed for models this build does not know.
	fallbackDimensions = 1536
)

const provider = "openai"

// Config selects the endpoint and model. APIKey may only be empty when
// BaseURL names a compatible server. Dimensions other than the model's
// native size are requested from the API, which only text-embedding-3-*
// honours.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
	MaxBatch   int
}

// EmbeddingService embeds through the openai-go client.
type EmbeddingService struct {
	client     openai.Client
	model      string
	dimensions int
	maxBatch   int
	shorten    bool
}

// NewEmbeddingService validates cfg and builds the client. Retries are
// disabled; ingestion has its own backoff.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: embedding.api_key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}

	native, known := domain.EmbeddingDimensions()[cfg.Model]
	dims := cfg.Dimensions
	switch {
	case dims != 0:
	case known:
		dims = native
	default:
		dims = fallbackDimensions
	}

	return &EmbeddingService{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"),
			option.WithRequestTimeout(cfg.Timeout),
			option.WithMaxRetries(0),
		),
		model:      cfg.Model,
		dimensions: dims,
		maxBatch:   cfg.MaxBatch,
		shorten:    known && dims != native,
	}, nil
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch sends texts in requests of at most MaxBatch inputs and
// returns one vector per text, in input order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.maxBatch {
		part, err := s.request(ctx, texts[start:min(start+s.maxBatch, len(texts))])
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	if err := embedding.CheckDimensions(provider, out, s.dimensions); err != nil {
		return nil, err
	}
	return out, nil
}

// request embeds one batch. The API may return items in any order, so
// each is placed by its reported index.
func (s *EmbeddingService) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(s.model),
	}
	if s.shorten {
		params.Dimensions = openai.Int(int64(s.dimensions))
	}

	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, embedding.Classify(ctx, provider, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, embedding.Classify(ctx, provider,
			fmt.Errorf("asked for %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		i := int(item.Index)
		if i < 0 || i >= len(texts) || vectors[i] != nil {
			return nil, embedding.Classify(ctx, provider, fmt.Errorf("bad embedding index %d", item.Index))
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping fetches the model, which checks the key and the model name at once.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model); err != nil {
		return embedding.Classify(ctx, provider, err)
	}
	return nil
}

func (s *EmbeddingService) Close() error {
	return nil
}
