// Package jsonl reads document exports with one JSON object per line:
//
//	{"id": "...", "content": "...", "metadata": {"source_url": "...",
//	 "title": "...", "section": "...", "last_modified": "..."}}
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure Loader implements the interface.
var _ driven.Loader = (*Loader)(nil)

// MIMEType identifies export files.
const MIMEType = "application/x-ndjson"

// maxLineSize bounds a single record.
const maxLineSize = 16 << 20

// Layouts accepted for last_modified, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

type record struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// Loader reads export files from disk.
type Loader struct{}

// New creates a JSONL loader.
func New() *Loader {
	return &Loader{}
}

// Load calls fn for every record in the export file at path.
func (l *Loader) Load(ctx context.Context, path string, fn func(raw *domain.RawDocument) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	return Decode(ctx, f, path, fn)
}

// Decode reads records from r. Malformed lines and records without an id
// are logged and skipped; errors from fn stop decoding.
func Decode(ctx context.Context, r io.Reader, uri string, fn func(raw *domain.RawDocument) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			logger.Warn("%s:%d: skipping malformed record: %v", uri, line, err)
			continue
		}
		if rec.ID == "" {
			logger.Warn("%s:%d: skipping record without id", uri, line)
			continue
		}

		if err := fn(toRaw(&rec, uri)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s:%d: %w", uri, line+1, err)
	}
	return nil
}

// toRaw maps an exported record to a raw document. Exported page content
// is Markdown produced from the page HTML; PDF content is plain text.
func toRaw(rec *record, uri string) *domain.RawDocument {
	mimeType := "text/markdown"
	if ct, _ := rec.Metadata["content_type"].(string); ct == "pdf" {
		mimeType = "text/plain"
	}

	raw := &domain.RawDocument{
		ID:       rec.ID,
		URI:      uri,
		MIMEType: mimeType,
		Content:  []byte(rec.Content),
		Metadata: rec.Metadata,
	}
	if s, ok := rec.Metadata["last_modified"].(string); ok {
		raw.ModifiedAt = parseTime(s)
	}
	return raw
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
