package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

const uriScheme = "handbook://"

// documentSummary is one row of handbook://documents.
type documentSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URI     string `json:"uri"`
	Section string `json:"section,omitempty"`
}

// chunkView is one element of handbook://chunks/{id}. Vectors are left out.
type chunkView struct {
	ID          string   `json:"id"`
	Ordinal     int      `json:"ordinal"`
	Section     string   `json:"section,omitempty"`
	HeadingPath []string `json:"heading_path,omitempty"`
	Content     string   `json:"content"`
}

// registerResources exposes the document list and per-document content and
// chunks. Nothing is registered without a document service.
func (s *Server) registerResources() {
	if s.ports.Document == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "Every ingested handbook document",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	// ids are relative paths; {+...} lets them keep their slashes
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{+documentId}",
		Name:        "document-content",
		Description: "Normalised text of one handbook document",
		MIMEType:    "text/plain",
	}, s.handleDocumentContentResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "chunks/{+documentId}",
		Name:        "document-chunks",
		Description: "Chunks of one handbook document, in order",
		MIMEType:    "application/json",
	}, s.handleChunksResource)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Document.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	rows := make([]documentSummary, len(docs))
	for i, d := range docs {
		rows[i] = documentSummary{ID: d.ID, Title: d.Title, URI: d.URI, Section: d.Section}
	}
	return jsonResult(req.Params.URI, rows)
}

func (s *Server) handleDocumentContentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	return lookup(uri, "documents/", "getting document", func(id string) (*mcp.ReadResourceResult, error) {
		doc, err := s.ports.Document.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return textResult(uri, "text/plain", doc.Content), nil
	})
}

func (s *Server) handleChunksResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	return lookup(uri, "chunks/", "getting chunks", func(id string) (*mcp.ReadResourceResult, error) {
		chunks, err := s.ports.Document.Chunks(ctx, id)
		if err != nil {
			return nil, err
		}
		views := make([]chunkView, len(chunks))
		for i, c := range chunks {
			views[i] = chunkView{ID: c.ID, Ordinal: c.Ordinal, Section: c.Section, HeadingPath: c.HeadingPath, Content: c.Content}
		}
		return jsonResult(uri, views)
	})
}

// lookup pulls the document id out of uri and runs read with it. A
// malformed uri or domain.ErrNotFound becomes the protocol's not-found
// error; anything else is wrapped with what.
func lookup(uri, kind, what string, read func(id string) (*mcp.ReadResourceResult, error)) (*mcp.ReadResourceResult, error) {
	id := extractID(uri, kind)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	res, err := read(id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, mcp.ResourceNotFoundError(uri)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return res, nil
}

func textResult(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeType, Text: text}},
	}
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return textResult(uri, "application/json", string(data)), nil
}

// extractID returns the percent-decoded id in handbook://<kind><id>, or
// "" when uri has another shape.
func extractID(uri, kind string) string {
	raw, ok := strings.CutPrefix(uri, uriScheme+kind)
	if !ok {
		return ""
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return ""
	}
	return id
}
