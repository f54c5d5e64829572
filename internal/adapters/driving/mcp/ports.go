package mcp

import (
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval answers queries with ranked chunks.
	Retrieval driving.RetrievalService

	// Prompt assembles bounded prompts.
	Prompt driving.PromptService

	// Answer runs the full question answering round. Optional; the ask
	// tool is only registered when it is set.
	Answer driving.AnswerService

	// Document exposes the stored corpus. Optional.
	Document driving.DocumentService
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	if p.Prompt == nil {
		return ErrMissingPromptService
	}
	return nil
}
