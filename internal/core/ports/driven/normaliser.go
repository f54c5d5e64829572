package driven

import (
	"context"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// Normaliser turns raw handbook bytes of one family of formats into plain
// text plus metadata (title, section, headings). It never chunks.
type Normaliser interface {
	SupportedMIMETypes() []string

	// Priority breaks ties when two normalisers claim a MIME type; the
	// higher value wins. Format-specific normalisers use 50-89 and the
	// plain-text fallback stays below 10.
	Priority() int

	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult wraps the normalised document.
type NormaliseResult struct {
	Document domain.Document
}

// NormaliserRegistry dispatches a raw document to the best normaliser for
// its MIME type. An unknown type fails with domain.ErrUnsupportedType.
type NormaliserRegistry interface {
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
	Register(normaliser Normaliser)
	SupportedMIMETypes() []string
}

// Loader walks a source, such as a directory tree or a JSONL export, and
// yields raw documents. Returning an error from fn stops the walk.
type Loader interface {
	Load(ctx context.Context, path string, fn func(raw *domain.RawDocument) error) error
}
