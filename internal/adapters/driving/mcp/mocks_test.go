package mcp

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	result *domain.RetrievalResult
	err    error
	opts   domain.RetrieveOptions
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	query string,
	opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &domain.RetrievalResult{Query: query, Chunks: []domain.RetrievedChunk{}}, nil
	}
	return m.result, nil
}

// mockPromptService is a mock implementation of driving.PromptService.
type mockPromptService struct {
	prompt   string
	err      error
	maxChars int
}

func (m *mockPromptService) Assemble(_ string, _ *domain.RetrievalResult, maxChars int) (string, error) {
	m.maxChars = maxChars
	return m.prompt, m.err
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
	documents []domain.Document
	document  *domain.Document
	chunks    []domain.Chunk
	err       error
	lastID    string
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	m.lastID = id
	return m.document, m.err
}

func (m *mockDocumentService) Chunks(_ context.Context, id string) ([]domain.Chunk, error) {
	m.lastID = id
	return m.chunks, m.err
}

func basePorts() *Ports {
	return &Ports{
		Retrieval: &mockRetrievalService{},
		Prompt:    &mockPromptService{},
	}
}
