package markdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

func TestNew(t *testing.T) {
	normaliser := New()
	require.NotNil(t, normaliser)
	assert.IsType(t, &Normaliser{}, normaliser)
}

func TestSupportedMIMETypes(t *testing.T) {
	assert.ElementsMatch(t, []string{"text/markdown", "text/x-markdown"}, New().SupportedMIMETypes())
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	raw := &domain.RawDocument{
		ID:       "assessment/exams.md",
		URI:      "/handbook/assessment/exams.md",
		MIMEType: "text/markdown",
		Content:  []byte("# Exams\n\nExams are held in **January** and *May*.\n\n## Resits\n\nSee [the resit page](https://example.edu/resits)."),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, result)

	doc := result.Document
	assert.Equal(t, "assessment/exams.md", doc.ID)
	assert.Equal(t, "Exams", doc.Title)
	assert.Equal(t, "# Exams\n\nExams are held in January and May.\n\n## Resits\n\nSee the resit page.", doc.Content)
	assert.Equal(t, "markdown", doc.Metadata["format"])
}

func TestNormalise_FrontMatter(t *testing.T) {
	raw := &domain.RawDocument{
		ID:         "welfare.md",
		URI:        "/handbook/welfare.md",
		MIMEType:   "text/markdown",
		ModifiedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Content: []byte("---\n" +
			"title: Student Welfare\n" +
			"section: Support\n" +
			"last_modified: 2025-03-04\n" +
			"---\n" +
			"# Welfare\n\nTalk to your tutor.\n"),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	doc := result.Document
	assert.Equal(t, "Student Welfare", doc.Title)
	assert.Equal(t, "Support", doc.Section)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), doc.ModifiedAt)
	assert.Equal(t, "# Welfare\n\nTalk to your tutor.", doc.Content)
	assert.Nil(t, raw.Metadata, "raw metadata must not be modified")
}

func TestNormalise_LoaderMetadataWinsOverFrontMatter(t *testing.T) {
	raw := &domain.RawDocument{
		ID:       "x.md",
		URI:      "/x.md",
		Content:  []byte("---\ntitle: From header\n---\nbody"),
		Metadata: map[string]any{"title": "From loader"},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "From loader", result.Document.Title)
}

func TestNormalise_InvalidFrontMatterKeptAsBody(t *testing.T) {
	raw := &domain.RawDocument{
		ID:      "broken.md",
		URI:     "/broken.md",
		Content: []byte("---\ntitle: [unclosed\n---\nbody text"),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Contains(t, result.Document.Content, "body text")
	assert.Equal(t, "broken", result.Document.Title)
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	raw := &domain.RawDocument{ID: "empty.md", URI: "/notes/empty.md"}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, result.Document.Content)
	assert.Equal(t, "empty", result.Document.Title)
}

func TestSplitFrontMatter(t *testing.T) {
	t.Run("no front matter", func(t *testing.T) {
		front, body, err := splitFrontMatter("# Title\nbody")
		require.NoError(t, err)
		assert.Nil(t, front)
		assert.Equal(t, "# Title\nbody", body)
	})

	t.Run("unterminated block is body", func(t *testing.T) {
		front, body, err := splitFrontMatter("---\ntitle: x\nbody")
		require.NoError(t, err)
		assert.Nil(t, front)
		assert.Equal(t, "---\ntitle: x\nbody", body)
	})

	t.Run("dots terminator and CRLF", func(t *testing.T) {
		front, body, err := splitFrontMatter("---\r\nsection: Fees\r\n...\r\nbody")
		require.NoError(t, err)
		assert.Equal(t, "Fees", front["section"])
		assert.Equal(t, "body", body)
	})
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"headings kept", "# Title\n\n## Sub", "# Title\n\n## Sub"},
		{"bold removed", "a **bold** and __strong__ word", "a bold and strong word"},
		{"italic removed", "an *italic* and _other_ word", "an italic and other word"},
		{"snake case untouched", "use file_name_here", "use file_name_here"},
		{"links to text", "[Click](https://x.y) now", "Click now"},
		{"images removed", "See ![alt](img.png) this", "See  this"},
		{"inline code kept", "run `make test`", "run make test"},
		{"code fences dropped", "```go\nx := 1\n```", "x := 1"},
		{"blockquote", "> quoted", "quoted"},
		{"horizontal rule", "above\n\n***\n\nbelow", "above\n\nbelow"},
		{"list markers standardised", "* one\n+ two\n- three", "- one\n- two\n- three"},
		{"html removed", "a <br/> b", "a  b"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, stripMarkdown(tc.input))
		})
	}
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}
