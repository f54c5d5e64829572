// Package postprocessors turns normalised documents into chunks.
package postprocessors

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs processors in order and hands the ingest service chunks
// that are safe to embed: non-blank, owned by the document, uniquely
// identified and densely numbered from zero.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a pipeline. The first processor receives nil chunks
// and must create them.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Names lists the processors in run order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// Process chunks doc.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, proc := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		chunks, err = proc.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", proc.Name(), err)
		}
	}

	return settle(doc.ID, chunks)
}

// settle drops blank chunks, renumbers the rest and keeps Length in step
// with Content after processors that rewrite text.
func settle(documentID string, chunks []domain.Chunk) ([]domain.Chunk, error) {
	seen := make(map[string]struct{}, len(chunks))
	kept := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		switch c.DocumentID {
		case "":
			c.DocumentID = documentID
		case documentID:
		default:
			return nil, fmt.Errorf("%w: chunk %s belongs to %s, not %s",
				domain.ErrInvalidInput, c.ID, c.DocumentID, documentID)
		}
		if c.ID == "" {
			return nil, fmt.Errorf("%w: chunk %d of %s has no id", domain.ErrInvalidInput, len(kept), documentID)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk id %s in %s", domain.ErrInvalidInput, c.ID, documentID)
		}
		seen[c.ID] = struct{}{}

		c.Ordinal = len(kept)
		c.Length = utf8.RuneCountInString(c.Content)
		kept = append(kept, c)
	}
	return kept, nil
}
