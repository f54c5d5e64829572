// Package docmeta holds the pieces every normaliser shares: metadata keys
// written by loaders and the assembly of a Document from a RawDocument.
package docmeta

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

// Metadata keys set by loaders.
const (
	KeyTitle        = "title"
	KeySection      = "section"
	KeySourceURL    = "source_url"
	KeyLastModified = "last_modified"
	KeyMIMEType     = "mime_type"
	KeyFormat       = "format"
)

// Build assembles the normalised document for raw.
//
// Loader metadata wins over values extracted from the content: a title or
// section supplied by the export is kept, extracted is used otherwise, and
// the filename is the last resort for the title.
func Build(raw *domain.RawDocument, extractedTitle, content, format string) domain.Document {
	meta := CopyMetadata(raw.Metadata)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[KeyMIMEType] = raw.MIMEType
	if format != "" {
		meta[KeyFormat] = format
	}

	title := String(meta, KeyTitle)
	if title == "" {
		title = extractedTitle
	}
	if title == "" {
		title = FilenameTitle(raw.URI)
	}

	uri := String(meta, KeySourceURL)
	if uri == "" {
		uri = raw.URI
	}

	id := raw.ID
	if id == "" {
		id = raw.URI
	}

	now := time.Now().UTC()
	return domain.Document{
		ID:         id,
		Title:      title,
		URI:        uri,
		Section:    String(meta, KeySection),
		Content:    content,
		ModifiedAt: raw.ModifiedAt,
		Metadata:   meta,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// FilenameTitle derives a human-readable title from a path.
func FilenameTitle(uri string) string {
	filename := filepath.Base(uri)
	if filename == "." || filename == "/" {
		return ""
	}
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

// String returns meta[key] when it is a string.
func String(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

// CopyMetadata creates a shallow copy of metadata.
func CopyMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
