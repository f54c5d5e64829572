package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
)

func TestDocumentCmd_Subcommands(t *testing.T) {
	names := make([]string, 0, len(documentCmd.Commands()))
	for _, c := range documentCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"list", "get", "content", "chunks", "delete"}, names)
}

func TestDocumentCmd_Args(t *testing.T) {
	assert.Error(t, documentListCmd.Args(documentListCmd, []string{"extra"}))
	assert.Error(t, documentGetCmd.Args(documentGetCmd, []string{}))
	assert.NoError(t, documentGetCmd.Args(documentGetCmd, []string{"staff.md"}))
	assert.Error(t, documentDeleteCmd.Args(documentDeleteCmd, []string{"a", "b"}))
}

func TestDocumentList(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("document", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "Documents:")
	assert.Contains(t, out, "staff.md")
	assert.Contains(t, out, "Title: Staff contacts")
	assert.Contains(t, out, "Section: Staff")
	assert.Contains(t, out, "Total: 1 documents")
}

func TestDocumentList_Empty(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.document.docs = nil

	out, err := execute("document", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No documents ingested.")
}

func TestDocumentList_JSON(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("document", "list", "--json")

	require.NoError(t, err)
	assert.Contains(t, out, `"ID": "staff.md"`)
}

func TestDocumentList_Error(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.document.err = errService

	_, err := execute("document", "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list documents")
}

func TestDocumentList_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	documentService = nil

	_, err := execute("document", "list")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "document service not configured")
}

func TestDocumentGet(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("document", "get", "staff.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Document: staff.md")
	assert.Contains(t, out, "Chunks:  1")
	assert.Contains(t, out, "Hash:    abc123")
	assert.Contains(t, out, "Updated: 2024-09-01 12:00:00")
	assert.Contains(t, out, "format: markdown")
}

func TestDocumentGet_NotFound(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute("document", "get", "missing.md")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "failed to get document")
}

func TestDocumentContent(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("document", "content", "staff.md")

	require.NoError(t, err)
	assert.Equal(t, "Office hours: Dr Keppens, Room 4.12, Tue 2-4pm\n", out)
}

func TestDocumentChunks(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("document", "chunks", "staff.md")

	require.NoError(t, err)
	assert.Contains(t, out, "[0] chunk-1 (46 chars) Staff")
	assert.Contains(t, out, "Room 4.12")
}

func TestDocumentChunks_Empty(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.document.chunks = nil

	out, err := execute("document", "chunks", "staff.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Document staff.md has no chunks.")
}

func TestDocumentDelete(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("document", "delete", "staff.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Document staff.md removed from index.")
	assert.Equal(t, []string{"staff.md"}, m.ingest.deleted)
}

func TestDocumentDelete_Error(t *testing.T) {
	m, cleanup := setupTestServices()
	defer cleanup()
	m.ingest.err = errService

	_, err := execute("document", "delete", "staff.md")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete document")
}

func TestDocumentDelete_NotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	ingestService = nil

	_, err := execute("document", "delete", "staff.md")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest service not configured")
}

func TestDocumentCmd_Alias(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute("doc", "content", "staff.md")

	require.NoError(t, err)
	assert.Contains(t, out, "Room 4.12")
}
