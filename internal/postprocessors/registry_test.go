package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// registryMockProcessor records the settings it was built with.
type registryMockProcessor struct {
	name     string
	settings domain.ChunkingSettings
}

func (m *registryMockProcessor) Name() string { return m.name }
func (m *registryMockProcessor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	return chunks, nil
}

func mockBuilder(name string) BuilderFunc {
	return func(settings domain.ChunkingSettings) (driven.PostProcessor, error) {
		return &registryMockProcessor{name: name, settings: settings}, nil
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("test", mockBuilder("test")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !r.Has("test") {
		t.Error("expected 'test' to be registered")
	}
	if r.Has("other") {
		t.Error("expected 'other' not to be registered")
	}

	err := r.Register("test", mockBuilder("again"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for duplicate name, got %v", err)
	}
}

func TestRegistry_Build(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("test", mockBuilder("test"))

	settings := domain.ChunkingSettings{MaxChunkSize: 500, OverlapUnits: 2}
	proc, err := r.Build("test", settings)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got := proc.(*registryMockProcessor)
	if got.settings != settings {
		t.Errorf("expected settings %+v, got %+v", settings, got.settings)
	}

	_, err = r.Build("unknown", settings)
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestRegistry_BuildPipeline(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("first", mockBuilder("first"))
	_ = r.Register("second", mockBuilder("second"))

	p, err := r.BuildPipeline(domain.ChunkingSettings{}, "first", "second")
	if err != nil {
		t.Fatalf("BuildPipeline failed: %v", err)
	}
	if names := p.Names(); len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Errorf("expected [first second], got %v", names)
	}

	if _, err := r.BuildPipeline(domain.ChunkingSettings{}, "first", "missing"); err == nil {
		t.Error("expected error for missing processor")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	if len(r.Names()) != 0 {
		t.Errorf("expected no names, got %v", r.Names())
	}

	_ = r.Register("beta", mockBuilder("beta"))
	_ = r.Register("alpha", mockBuilder("alpha"))

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("expected sorted [alpha beta], got %v", names)
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	if err := RegisterDefaults(r); err != nil {
		t.Fatalf("RegisterDefaults failed: %v", err)
	}
	if !r.Has(ChunkerName) {
		t.Errorf("expected %q to be registered", ChunkerName)
	}

	proc, err := r.Build(ChunkerName, domain.ChunkingSettings{MaxChunkSize: 500, OverlapUnits: 2})
	if err != nil {
		t.Fatalf("Build chunker failed: %v", err)
	}
	if proc.Name() != ChunkerName {
		t.Errorf("expected name %q, got %q", ChunkerName, proc.Name())
	}

	_, err = r.Build(ChunkerName, domain.ChunkingSettings{MaxChunkSize: -1})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative size, got %v", err)
	}
}

func TestNewDefaultPipeline(t *testing.T) {
	p, err := NewDefaultPipeline(domain.ChunkingSettings{MaxChunkSize: 21, OverlapUnits: 0})
	if err != nil {
		t.Fatalf("NewDefaultPipeline failed: %v", err)
	}
	if names := p.Names(); len(names) != 1 || names[0] != ChunkerName {
		t.Fatalf("expected [%s], got %v", ChunkerName, names)
	}

	doc := &domain.Document{ID: "doc", Content: "First sentence here. Second sentence here."}
	chunks, err := p.Process(context.Background(), doc)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks with a 21 rune bound, got %d", len(chunks))
	}
	if chunks[1].Content != "Second sentence here." {
		t.Errorf("unexpected second chunk %q", chunks[1].Content)
	}
}
