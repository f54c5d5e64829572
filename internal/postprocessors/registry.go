package postprocessors

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// BuilderFunc creates a PostProcessor from the chunking settings.
type BuilderFunc func(settings domain.ChunkingSettings) (driven.PostProcessor, error)

// Registry maps processor names to their builders so the pipeline can be
// described by name.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFunc),
	}
}

// Register adds a builder under name. Registering a name twice is an error.
func (r *Registry) Register(name string, builder BuilderFunc) error {
	if _, ok := r.builders[name]; ok {
		return fmt.Errorf("%w: processor %q already registered", domain.ErrInvalidInput, name)
	}
	r.builders[name] = builder
	return nil
}

// Build creates the processor registered under name.
func (r *Registry) Build(name string, settings domain.ChunkingSettings) (driven.PostProcessor, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: processor %q", domain.ErrUnsupportedType, name)
	}
	return builder(settings)
}

// BuildPipeline builds the named processors and chains them in order.
func (r *Registry) BuildPipeline(settings domain.ChunkingSettings, names ...string) (*Pipeline, error) {
	procs := make([]driven.PostProcessor, 0, len(names))
	for _, name := range names {
		proc, err := r.Build(name, settings)
		if err != nil {
			return nil, err
		}
		procs = append(procs, proc)
	}
	return NewPipeline(procs...), nil
}

// Has reports whether a processor is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns the registered processor names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
