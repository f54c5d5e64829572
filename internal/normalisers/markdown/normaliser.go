// Package markdown provides a Normaliser for Markdown documents.
// YAML front matter supplies the title, section and modification date;
// headings are kept so the chunker can build heading paths.
package markdown

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
	"github.com/custodia-labs/handbook-rag/internal/normalisers/docmeta"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Normalise converts a markdown document to a normalised document.
// The Content field keeps headings and drops inline formatting.
// Chunking is handled by the PostProcessor pipeline.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*driven.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	front, body, err := splitFrontMatter(string(raw.Content))
	if err != nil {
		// A broken header is treated as body text rather than failing the document.
		logger.Warn("markdown %s: %v", raw.URI, err)
		front, body = nil, string(raw.Content)
	}

	withFront := *raw
	withFront.Metadata = docmeta.CopyMetadata(raw.Metadata)
	modified := applyFrontMatter(&withFront, front)

	doc := docmeta.Build(&withFront, extractMarkdownTitle(body), stripMarkdown(body), "markdown")
	if !modified.IsZero() {
		doc.ModifiedAt = modified
	}

	return &driven.NormaliseResult{
		Document: doc,
	}, nil
}

// splitFrontMatter separates a leading YAML block delimited by "---" lines.
func splitFrontMatter(content string) (map[string]any, string, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return nil, content, nil
	}

	rest := content[strings.IndexByte(content, '\n')+1:]
	end := -1
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "---" || trimmed == "..." {
			end = offset
			offset += len(line)
			break
		}
		offset += len(line)
	}
	if end < 0 {
		return nil, content, nil
	}

	var front map[string]any
	if err := yaml.Unmarshal([]byte(rest[:end]), &front); err != nil {
		return nil, content, fmt.Errorf("invalid front matter: %w", err)
	}
	return front, rest[offset:], nil
}

// applyFrontMatter copies title and section into raw metadata unless the
// loader already set them, and returns the declared modification date.
func applyFrontMatter(raw *domain.RawDocument, front map[string]any) time.Time {
	if len(front) == 0 {
		return time.Time{}
	}
	if raw.Metadata == nil {
		raw.Metadata = make(map[string]any)
	}
	for _, key := range []string{docmeta.KeyTitle, docmeta.KeySection} {
		if v, ok := front[key].(string); ok && v != "" && docmeta.String(raw.Metadata, key) == "" {
			raw.Metadata[key] = v
		}
	}

	for _, key := range []string{docmeta.KeyLastModified, "date"} {
		switch v := front[key].(type) {
		case time.Time:
			return v.UTC()
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if t, err := time.Parse(layout, v); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return time.Time{}
}

// extractMarkdownTitle returns the first level one heading, if any.
func extractMarkdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.Trim(line, "#"))
		}
	}
	return ""
}

var (
	codeFence     = regexp.MustCompile("(?m)^[ \t]*(```|~~~).*$")
	inlineCode    = regexp.MustCompile("`([^`]+)`")
	images        = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	strong        = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	emphasis      = regexp.MustCompile(`(^|[\s(])[*_](\S(?:[^*_]*?\S)?)[*_]`)
	blockquote    = regexp.MustCompile(`(?m)^>\s?`)
	hr            = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
	listMarkers   = regexp.MustCompile(`(?m)^([ \t]*)[*+][ \t]+`)
	htmlTags      = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// stripMarkdown removes inline markdown formatting for plain text content.
// Heading lines and "-" list markers are kept.
func stripMarkdown(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	content = codeFence.ReplaceAllString(content, "")
	content = hr.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "")
	content = links.ReplaceAllString(content, "$1")
	content = strong.ReplaceAllString(content, "$2")
	content = emphasis.ReplaceAllString(content, "$1$2")
	content = blockquote.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "$1- ")
	content = htmlTags.ReplaceAllString(content, "")

	content = multiNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
