package plaintext

import (
	"context"
	"strings"
	"testing"

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
	mimeTypes := New().SupportedMIMETypes()

	assert.Contains(t, mimeTypes, "text/plain")
	assert.Contains(t, mimeTypes, "text/*")
}

func TestPriority(t *testing.T) {
	assert.Equal(t, 5, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	raw := &domain.RawDocument{
		ID:       "contacts.txt",
		URI:      "/handbook/office_hours.txt",
		MIMEType: "text/plain",
		Content:  []byte("Office hours: Dr Keppens, Room 4.12, Tue 2-4pm"),
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, result)

	doc := result.Document
	assert.Equal(t, "contacts.txt", doc.ID)
	assert.Equal(t, "office hours", doc.Title)
	assert.Equal(t, "Office hours: Dr Keppens, Room 4.12, Tue 2-4pm", doc.Content)
	assert.Equal(t, "text/plain", doc.Metadata["mime_type"])
}

func TestNormalise_NilDocument(t *testing.T) {
	result, err := New().Normalise(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, result)
}

func TestNormalise_EmptyContent(t *testing.T) {
	raw := &domain.RawDocument{ID: "empty.txt", URI: "/empty.txt", MIMEType: "text/plain"}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Empty(t, result.Document.Content)
}

func TestNormalise_TitleFromMetadata(t *testing.T) {
	raw := &domain.RawDocument{
		ID:       "a",
		URI:      "/file.txt",
		Metadata: map[string]any{"title": "Actual Name"},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Actual Name", result.Document.Title)
}

func TestNormalise_InvalidUTF8(t *testing.T) {
	raw := &domain.RawDocument{ID: "bin", Content: []byte{'o', 'k', 0xff, '!'}}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "ok�!", result.Document.Content)
}

func TestNormalise_UnicodeContent(t *testing.T) {
	content := "Café – naïve résumé 日本語"
	raw := &domain.RawDocument{ID: "u", Content: []byte(content)}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, content, result.Document.Content)
}

func TestNormalise_LargeContent(t *testing.T) {
	content := strings.Repeat("The library opens at 9am. ", 10000)
	raw := &domain.RawDocument{ID: "big", Content: []byte(content)}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, result.Document.Content, len(content))
}

func TestNormalise_UnderlinedHeadings(t *testing.T) {
	text := "Student Handbook\r\n================\r\n\r\nWelcome.\r\n\r\nFees\r\n----\r\nTuition is due on 1 October.\r\n"
	raw := &domain.RawDocument{ID: "handbook.txt", URI: "/docs/handbook.txt", Content: []byte(text)}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)

	doc := result.Document
	assert.Equal(t, "Student Handbook", doc.Title)
	assert.Equal(t, "# Student Handbook\n\nWelcome.\n\n## Fees\nTuition is due on 1 October.\n", doc.Content)
}

func TestNormalise_LoaderTitleWins(t *testing.T) {
	raw := &domain.RawDocument{
		ID:       "h.txt",
		Content:  []byte("Fees\n====\nDue in October."),
		Metadata: map[string]any{"title": "Finance"},
	}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Finance", result.Document.Title)
	assert.True(t, strings.HasPrefix(result.Document.Content, "# Fees\n"))
}

func TestNormalise_RuleWithoutHeading(t *testing.T) {
	raw := &domain.RawDocument{ID: "r.txt", Content: []byte("intro\n\n----\n\nbody")}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "intro\n\n----\n\nbody", result.Document.Content)
}

func TestNormalise_StripsBOMAndBlankRuns(t *testing.T) {
	raw := &domain.RawDocument{ID: "b.txt", Content: []byte("\uFEFFLibrary\n\n\n\n\nOpens at 9am.")}

	result, err := New().Normalise(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Library\n\nOpens at 9am.", result.Document.Content)
}

func TestInterfaceCompliance(t *testing.T) {
	var _ driven.Normaliser = (*Normaliser)(nil)
}
