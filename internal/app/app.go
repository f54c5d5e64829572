// Package app assembles the engine from its adapters. It is the only
// place that knows which concrete storage, embedding and index
// implementations back the driving ports.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/handbook-rag/internal/core/services"
	"github.com/custodia-labs/handbook-rag/internal/logger"
	"github.com/custodia-labs/handbook-rag/internal/normalisers"
	"github.com/custodia-labs/handbook-rag/internal/postprocessors"
)

// Options locate the configuration and data directories.
// Empty values fall back to ~/.handbook-rag.
type Options struct {
	ConfigDir string
	DataDir   string

	// SkipIndexLoad leaves the saved index unloaded and unchecked, so that
	// an index built with another model or dimension can be inspected and
	// replaced with Index.Rebuild. Queries see an empty index until then.
	SkipIndexLoad bool
}

// App holds the wired services of one process.
type App struct {
	Settings  *services.SettingsService
	Retrieval *services.RetrievalService
	Prompt    *services.PromptService
	Answer    *services.AnswerService
	Document  *services.DocumentService
	Ingest    *services.IngestService
	Index     *services.IndexLifecycle
	Registry  *normalisers.Registry

	// Generates is true when a generator is configured and reachable.
	Generates bool

	store    *sqlite.Store
	adapters *ai.InitResult
}

// OpenSettings builds the settings service alone. Commands that only
// read or edit the configuration use it without touching the index.
func OpenSettings(opts Options) (*services.SettingsService, error) {
	configStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	return services.NewSettingsService(configStore, ai.NewConfigValidator()), nil
}

// Open wires every service and opens the index. The returned App must be
// closed to save the index.
func Open(ctx context.Context, opts Options) (*App, error) {
	settingsService, err := OpenSettings(opts)
	if err != nil {
		return nil, err
	}
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", settingsService.Path(), err)
	}

	pipeline, err := postprocessors.NewDefaultPipeline(settings.Chunking)
	if err != nil {
		return nil, fmt.Errorf("building chunker: %w", err)
	}
	promptStore, err := file.NewPromptStore(promptDir(opts.ConfigDir))
	if err != nil {
		return nil, fmt.Errorf("opening prompts: %w", err)
	}

	store, err := sqlite.NewStore(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug("Store: %s", store.Path())

	adapters, err := ai.Init(ctx, settings)
	if err != nil {
		store.Close()
		return nil, err
	}

	docStore := store.DocumentStore()
	registry := normalisers.NewDefaultRegistry()

	a := &App{
		Settings:  settingsService,
		Registry:  registry,
		Generates: adapters.Generator != nil,
		store:     store,
		adapters:  adapters,
	}
	a.Index = services.NewIndexLifecycle(adapters.VectorIndex, store.IndexStore(), docStore, adapters.Embedder, settings.Ingestion)
	a.Ingest = services.NewIngestService(docStore, a.Index.Tracked(), adapters.Embedder, pipeline, registry, settings.Ingestion)
	a.Retrieval = services.NewRetrievalService(adapters.Embedder, adapters.VectorIndex, docStore, settings.Retrieval)
	a.Prompt = services.NewPromptService(promptStore, settings.Prompt)
	a.Answer = services.NewAnswerService(a.Retrieval, a.Prompt, adapters.Generator, settings.Generation)
	a.Document = services.NewDocumentService(docStore)

	if opts.SkipIndexLoad {
		logger.Debug("Index: saved snapshot not loaded")
		return a, nil
	}
	if err := a.Index.Open(ctx); err != nil {
		adapters.Close()
		store.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}
	return a, nil
}

// Close saves the index and releases every adapter.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Index.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	a.adapters.Close()
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}

// Supports reports whether documents of mimeType can be ingested.
func (a *App) Supports(mimeType string) bool {
	return a.Registry.Supports(mimeType)
}

func promptDir(configDir string) string {
	if configDir == "" {
		return ""
	}
	return filepath.Join(configDir, "prompts")
}
