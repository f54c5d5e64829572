// Package hugot provides a local sentence-transformer embedder running on
// the pure Go backend of knights-analytics/hugot.
package hugot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/embedding"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.Embedder = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultDimensions = 384
	DefaultOnnxFile   = "onnx/model.onnx"
)

const provider = "hugot"

// Config holds configuration for the hugot embedder.
type Config struct {
	// Model is the Hugging Face model name (default: all-MiniLM-L6-v2).
	Model string

	// ModelDir is where models are downloaded to (default: ~/.handbook-rag/models).
	ModelDir string

	// Dimensions is the sentence embedding size of the model.
	Dimensions int
}

// EmbeddingService generates embeddings with a local ONNX model.
type EmbeddingService struct {
	mu         sync.Mutex
	session    *hugot.Session
	pipeline   *pipelines.FeatureExtractionPipeline
	model      string
	dimensions int
}

// NewEmbeddingService prepares the model, downloading it on first use,
// and starts an inference session.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.ModelDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.ModelDir = filepath.Join(home, ".handbook-rag", "models")
	}

	modelPath, err := PrepareModel(cfg.Model, cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("hugot: create session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "handbook-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("hugot: create pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("hugot: create pipeline: %w", err)
	}

	return &EmbeddingService{
		session:    session,
		pipeline:   pipeline,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// PrepareModel downloads the model if it is not present and returns its path.
func PrepareModel(modelName, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, ModelDirName(modelName))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return "", fmt.Errorf("hugot: create model directory: %w", err)
	}

	logger.Info("downloading embedding model %s to %s", modelName, modelDir)
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = DefaultOnnxFile
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("hugot: download model: %w", err)
	}
	return downloadedPath, nil
}

// ModelDirName is the directory name hugot downloads a model into.
func ModelDirName(modelName string) string {
	return strings.ReplaceAll(modelName, "/", "_")
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch runs the model over texts. Inference is serialised because a
// pipeline is not safe for concurrent use.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, embedding.Classify(ctx, provider, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline == nil {
		return nil, embedding.Classify(ctx, provider, fmt.Errorf("session closed"))
	}

	result, err := s.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, embedding.Classify(ctx, provider, err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, embedding.Classify(ctx, provider,
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)))
	}
	if err := embedding.CheckDimensions(provider, result.Embeddings, s.dimensions); err != nil {
		return nil, err
	}
	return result.Embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping runs a tiny inference to verify the session works.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	_, err := s.Embed(ctx, "ping")
	return err
}

// Close destroys the inference session.
func (s *EmbeddingService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	s.pipeline = nil
	return err
}
