package jsonl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

const export = `{"id": "a1b2c3d4e5f6", "content": "## Office hours\n\nDr Keppens, Room 4.12", "metadata": {"source_url": "https://example.edu/contacts", "title": "Contacts", "section": "Staff", "content_type": "page", "last_modified": "2025-02-03T10:30:00"}}

not json
{"content": "no id"}
{"id": "ffeeddccbbaa", "content": "Fee schedule", "metadata": {"title": "Fees", "content_type": "pdf", "last_modified": null}}
`

func collect(t *testing.T, r string) []*domain.RawDocument {
	t.Helper()
	var docs []*domain.RawDocument
	err := Decode(context.Background(), strings.NewReader(r), "documents.jsonl", func(raw *domain.RawDocument) error {
		docs = append(docs, raw)
		return nil
	})
	require.NoError(t, err)
	return docs
}

func TestDecode(t *testing.T) {
	docs := collect(t, export)
	require.Len(t, docs, 2)

	page := docs[0]
	assert.Equal(t, "a1b2c3d4e5f6", page.ID)
	assert.Equal(t, "documents.jsonl", page.URI)
	assert.Equal(t, "text/markdown", page.MIMEType)
	assert.Equal(t, "## Office hours\n\nDr Keppens, Room 4.12", string(page.Content))
	assert.Equal(t, "https://example.edu/contacts", page.Metadata["source_url"])
	assert.Equal(t, "Staff", page.Metadata["section"])
	assert.Equal(t, time.Date(2025, 2, 3, 10, 30, 0, 0, time.UTC), page.ModifiedAt)

	pdf := docs[1]
	assert.Equal(t, "ffeeddccbbaa", pdf.ID)
	assert.Equal(t, "text/plain", pdf.MIMEType)
	assert.True(t, pdf.ModifiedAt.IsZero())
}

func TestDecode_CallbackErrorStops(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Decode(context.Background(), strings.NewReader(export), "x", func(*domain.RawDocument) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Decode(ctx, strings.NewReader(export), "x", func(*domain.RawDocument) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))

	var ids []string
	err := New().Load(context.Background(), path, func(raw *domain.RawDocument) error {
		ids = append(ids, raw.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1b2c3d4e5f6", "ffeeddccbbaa"}, ids)

	err = New().Load(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"), nil)
	assert.Error(t, err)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-02-03T10:30:00Z", time.Date(2025, 2, 3, 10, 30, 0, 0, time.UTC)},
		{"2025-02-03T10:30:00+01:00", time.Date(2025, 2, 3, 9, 30, 0, 0, time.UTC)},
		{"2025-02-03T10:30:00.123456", time.Date(2025, 2, 3, 10, 30, 0, 123456000, time.UTC)},
		{"2025-02-03", time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseTime(tt.in)), "got %v", parseTime(tt.in))
		})
	}
}
