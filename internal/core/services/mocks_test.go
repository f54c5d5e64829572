package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// stubEmbedder returns fixed vectors for known texts.
type stubEmbedder struct {
	vectors map[string][]float32
	dims    int
	model   string
	calls   atomic.Int32
}

func newStubEmbedder(vectors map[string][]float32) *stubEmbedder {
	return &stubEmbedder{vectors: vectors, dims: 3, model: "stub-v1"}
}

func (m *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.vectors[text]
	if !ok {
		return make([]float32, m.dims), nil
	}
	return v, nil
}

func (m *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *stubEmbedder) Dimensions() int              { return m.dims }
func (m *stubEmbedder) ModelName() string            { return m.model }
func (m *stubEmbedder) Ping(_ context.Context) error { return nil }
func (m *stubEmbedder) Close() error                 { return nil }

// slowEmbedder blocks until its context is done.
type slowEmbedder struct {
	stubEmbedder
}

func (m *slowEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// flakyEmbedder wraps another embedder and fails the first failures batch
// calls with err.
type flakyEmbedder struct {
	driven.Embedder
	failures int32
	err      error
	calls    atomic.Int32
}

func (m *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.calls.Add(1) <= m.failures {
		return nil, m.err
	}
	return m.Embedder.EmbedBatch(ctx, texts)
}

// countingEmbedder counts batch calls.
type countingEmbedder struct {
	driven.Embedder
	batches atomic.Int32
}

func (m *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batches.Add(1)
	return m.Embedder.EmbedBatch(ctx, texts)
}

// recordingIndex records the k passed to Search.
type recordingIndex struct {
	driven.VectorIndex
	lastK atomic.Int32
}

func (m *recordingIndex) Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]driven.VectorHit, error) {
	m.lastK.Store(int32(k))
	return m.VectorIndex.Search(ctx, query, k, filter)
}

// stubPrompts serves templates from a map.
type stubPrompts map[string]string

func (m stubPrompts) Load(name string) (string, error) {
	p, ok := m[name]
	if !ok {
		return "", fmt.Errorf("prompt %q: %w", name, domain.ErrNotFound)
	}
	return p, nil
}

func (m stubPrompts) Reload() {}

func testPrompts() stubPrompts {
	return stubPrompts{
		driven.PromptAnswer:    "CTX:\n{{context}}\nQ: {{question}}",
		driven.PromptNoContext: "NONE Q: {{question}}",
	}
}

// stubGenerator returns a fixed reply or error and records the prompt.
type stubGenerator struct {
	reply  string
	err    error
	prompt string
	opts   driven.GenerateOptions
}

func (m *stubGenerator) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.prompt = prompt
	m.opts = opts
	return m.reply, m.err
}

func (m *stubGenerator) ModelName() string            { return "stub-llm" }
func (m *stubGenerator) Ping(_ context.Context) error { return nil }
func (m *stubGenerator) Close() error                 { return nil }

// stubRetriever returns a fixed result.
type stubRetriever struct {
	result *domain.RetrievalResult
	err    error
}

func (m *stubRetriever) Retrieve(_ context.Context, query string, _ domain.RetrieveOptions) (*domain.RetrievalResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	result := *m.result
	result.Query = query
	return &result, nil
}

// memIndexStore keeps one snapshot in memory.
type memIndexStore struct {
	mu    sync.Mutex
	snap  *domain.IndexSnapshot
	saves int
}

func (m *memIndexStore) SaveSnapshot(_ context.Context, snapshot *domain.IndexSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snapshot
	m.saves++
	return nil
}

func (m *memIndexStore) LoadSnapshot(_ context.Context) (*domain.IndexSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, domain.ErrNotFound
	}
	return m.snap, nil
}

func (m *memIndexStore) ClearSnapshot(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

// mockValidator records validation calls.
type mockValidator struct {
	embeddingErr error
	embedding    *domain.EmbeddingSettings
	generation   *domain.GenerationSettings
}

func (m *mockValidator) ValidateEmbedding(config *domain.EmbeddingSettings) error {
	m.embedding = config
	return m.embeddingErr
}

func (m *mockValidator) ValidateGenerator(config *domain.GenerationSettings) error {
	m.generation = config
	return nil
}
