// Package mcp provides an MCP (Model Context Protocol) server adapter for the
// handbook retrieval engine. It lets AI assistants retrieve handbook excerpts
// and assemble grounded prompts.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")

// ErrMissingPromptService is returned when the prompt service is not provided.
var ErrMissingPromptService = errors.New("mcp: prompt service is required")
