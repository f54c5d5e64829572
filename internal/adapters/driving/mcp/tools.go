package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Query    string   `json:"query" jsonschema:"the student question to find handbook excerpts for"`
	TopK     int      `json:"top_k,omitempty" jsonschema:"maximum number of excerpts to return (default from settings)"`
	Sections []string `json:"sections,omitempty" jsonschema:"only return excerpts from these handbook sections"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Chunks []ChunkOutput `json:"chunks"`
	Count  int           `json:"count"`
}

// ChunkOutput represents a single retrieved excerpt.
type ChunkOutput struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title,omitempty"`
	URI        string  `json:"uri,omitempty"`
	Section    string  `json:"section,omitempty"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// PromptInput is the input schema for the assemble_prompt tool.
type PromptInput struct {
	Query    string `json:"query" jsonschema:"the student question"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"maximum number of excerpts to consider"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"character budget of the prompt (default from settings)"`
}

// PromptOutput is the output schema for the assemble_prompt tool.
type PromptOutput struct {
	Prompt       string   `json:"prompt"`
	ChunkIDs     []string `json:"chunk_ids"`
	Insufficient bool     `json:"insufficient"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Query string `json:"query" jsonschema:"the student question to answer from the handbook"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of excerpts to consider"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer       string   `json:"answer"`
	ChunkIDs     []string `json:"chunk_ids"`
	Insufficient bool     `json:"insufficient"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve the handbook excerpts most relevant to a question",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "assemble_prompt",
		Description: "Build a grounded, size-bounded prompt from the excerpts relevant to a question",
	}, s.handleAssemblePrompt)

	if s.ports.Answer != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question from the handbook using the configured generator",
		}, s.handleAsk)
	}
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	opts := domain.RetrieveOptions{TopK: input.TopK}
	if len(input.Sections) > 0 {
		opts.Filter = &domain.Filter{Sections: input.Sections}
	}

	result, err := s.ports.Retrieval.Retrieve(ctx, input.Query, opts)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Chunks: make([]ChunkOutput, len(result.Chunks)),
		Count:  len(result.Chunks),
	}
	for i := range result.Chunks {
		c := &result.Chunks[i]
		output.Chunks[i] = ChunkOutput{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Title:      c.Title,
			URI:        c.URI,
			Section:    c.Section,
			Score:      c.Score,
			Content:    c.Content,
		}
	}

	return nil, output, nil
}

// handleAssemblePrompt handles the assemble_prompt tool invocation.
func (s *Server) handleAssemblePrompt(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PromptInput,
) (*mcp.CallToolResult, PromptOutput, error) {
	result, err := s.ports.Retrieval.Retrieve(ctx, input.Query, domain.RetrieveOptions{TopK: input.TopK})
	if err != nil {
		return nil, PromptOutput{}, err
	}

	prompt, err := s.ports.Prompt.Assemble(input.Query, result, input.MaxChars)
	if err != nil {
		return nil, PromptOutput{}, err
	}

	return nil, PromptOutput{
		Prompt:       prompt,
		ChunkIDs:     result.ChunkIDs(),
		Insufficient: result.Empty(),
	}, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.ports.Answer.Ask(ctx, input.Query, domain.RetrieveOptions{TopK: input.TopK})
	if err != nil {
		return nil, AskOutput{}, err
	}

	return nil, AskOutput{
		Answer:       answer.Text,
		ChunkIDs:     answer.Result.ChunkIDs(),
		Insufficient: answer.Insufficient,
	}, nil
}
