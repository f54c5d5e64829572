package cli

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
)

var errService = errors.New("service unavailable")

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	result    *domain.RetrievalResult
	err       error
	lastQuery string
	lastOpts  domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(_ context.Context, query string, opts domain.RetrieveOptions) (*domain.RetrievalResult, error) {
	m.lastQuery = query
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockPromptService is a mock implementation of driving.PromptService.
type mockPromptService struct {
	err          error
	lastMaxChars int
}

func (m *mockPromptService) Assemble(query string, result *domain.RetrievalResult, maxChars int) (string, error) {
	m.lastMaxChars = maxChars
	if m.err != nil {
		return "", m.err
	}
	return "PROMPT " + query + " " + result.Query, nil
}

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	answer *domain.Answer
	err    error
}

func (m *mockAnswerService) Ask(_ context.Context, _ string, _ domain.RetrieveOptions) (*domain.Answer, error) {
	return m.answer, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	docs   []domain.Document
	chunks []domain.Chunk
	err    error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.docs, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

// mockIngestService is a mock implementation of driving.IngestService.
type mockIngestService struct {
	report  *driving.IngestReport
	err     error
	raws    []domain.RawDocument
	deleted []string
}

func (m *mockIngestService) Ingest(_ context.Context, docs []domain.Document) (*driving.IngestReport, error) {
	return &driving.IngestReport{Documents: len(docs)}, m.err
}

func (m *mockIngestService) IngestRaw(_ context.Context, raws []domain.RawDocument) (*driving.IngestReport, error) {
	m.raws = append(m.raws, raws...)
	report := m.report
	if report == nil {
		report = &driving.IngestReport{Documents: len(raws), Indexed: len(raws)}
	}
	return report, m.err
}

func (m *mockIngestService) Delete(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	stats   *driving.IndexStats
	err     error
	rebuilt bool
	flushed int
}

func (m *mockIndexService) Open(_ context.Context) error { return m.err }

func (m *mockIndexService) Rebuild(_ context.Context) (*domain.IndexInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.rebuilt = true
	return &m.stats.Info, nil
}

func (m *mockIndexService) Stats(_ context.Context) (*driving.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockIndexService) Flush(_ context.Context) error {
	m.flushed++
	return m.err
}

func (m *mockIndexService) Close(_ context.Context) error { return m.err }

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings    domain.Settings
	set         map[string]string
	setErr      error
	validateErr error
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(settings *domain.Settings) error {
	m.settings = *settings
	return nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Validate() error                { return m.validateErr }
func (m *mockSettingsService) GetDefaults() domain.Settings   { return domain.DefaultSettings() }
func (m *mockSettingsService) ValidateEmbeddingConfig() error { return m.validateErr }
func (m *mockSettingsService) ValidateGeneratorConfig() error { return m.validateErr }
func (m *mockSettingsService) Path() string                   { return "/home/student/.handbook-rag/config.toml" }

// testMocks gives tests access to the installed mocks.
type testMocks struct {
	retrieval *mockRetrievalService
	prompt    *mockPromptService
	answer    *mockAnswerService
	document  *mockDocumentService
	ingest    *mockIngestService
	index     *mockIndexService
	settings  *mockSettingsService
}

func sampleResult() *domain.RetrievalResult {
	return &domain.RetrievalResult{
		Query: "Where is Dr Keppens' office?",
		Chunks: []domain.RetrievedChunk{
			{
				ChunkID:    "chunk-1",
				DocumentID: "staff.md",
				Title:      "Staff contacts",
				URI:        "handbook/staff.md",
				Section:    "Staff",
				Score:      0.82,
				Similarity: 0.8,
				Content:    "Office hours: Dr Keppens, Room 4.12, Tue 2-4pm",
			},
			{
				ChunkID:    "chunk-2",
				DocumentID: "fees.md",
				Score:      0.41,
				Similarity: 0.4,
				Content:    "Tuition is due on 1 October.",
			},
		},
	}
}

// setupTestServices installs mocks for every service and returns a
// cleanup function restoring the previous state.
func setupTestServices() (*testMocks, func()) {
	m := &testMocks{
		retrieval: &mockRetrievalService{result: sampleResult()},
		prompt:    &mockPromptService{},
		answer: &mockAnswerService{answer: &domain.Answer{
			Text:   "Dr Keppens is in Room 4.12.",
			Prompt: "PROMPT",
			Result: sampleResult(),
		}},
		document: &mockDocumentService{
			docs: []domain.Document{
				{
					ID:          "staff.md",
					Title:       "Staff contacts",
					URI:         "handbook/staff.md",
					Section:     "Staff",
					Content:     "Office hours: Dr Keppens, Room 4.12, Tue 2-4pm",
					ContentHash: "abc123",
					UpdatedAt:   time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC),
					Metadata:    map[string]any{"format": "markdown"},
				},
			},
			chunks: []domain.Chunk{
				{ID: "chunk-1", DocumentID: "staff.md", Ordinal: 0, Length: 46, HeadingPath: []string{"Staff"},
					Content: "Office hours: Dr Keppens, Room 4.12, Tue 2-4pm"},
			},
		},
		ingest: &mockIngestService{},
		index: &mockIndexService{stats: &driving.IndexStats{
			Info:              domain.IndexInfo{ModelVersion: "hashing-v1", Dimension: 4096, Size: 12},
			Documents:         3,
			Embedder:          "hashing-v1",
			EmbedderDimension: 4096,
		}},
		settings: &mockSettingsService{settings: domain.DefaultSettings(), set: map[string]string{}},
	}

	old := Services{
		Retrieval: retrievalService,
		Prompt:    promptService,
		Answer:    answerService,
		Document:  documentService,
		Ingest:    ingestService,
		Index:     indexService,
		Settings:  settingsService,
		Generates: generates,
		Supports:  supportsType,
	}
	oldBootstrap := bootstrap

	bootstrap = nil
	setServices(&Services{
		Retrieval: m.retrieval,
		Prompt:    m.prompt,
		Answer:    m.answer,
		Document:  m.document,
		Ingest:    m.ingest,
		Index:     m.index,
		Settings:  m.settings,
		Generates: true,
	})

	return m, func() {
		setServices(&old)
		bootstrap = oldBootstrap
		resetFlags()
	}
}

// resetFlags restores flag variables between executions of rootCmd.
func resetFlags() {
	queryTopK = 0
	querySections = nil
	queryMinScore = 0
	queryJSON = false
	promptMaxChars = 0
	askJSON = false
	documentJSON = false
	ingestPrune = false
	mcpPort = 0
	mcpNoAsk = false
	ingestJSON = false
	configDir = ""
	dataDir = ""
	verbose = false
	if f := queryCmd.Flags().Lookup("min-score"); f != nil {
		f.Changed = false
	}
}

// execute runs rootCmd with args and returns its output.
func execute(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}
