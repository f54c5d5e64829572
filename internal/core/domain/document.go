package domain

import "time"

// Document represents a source document after normalisation.
// It is immutable once ingested and replaced wholesale when a document
// with the same ID is ingested again.
type Document struct {
	// ID is the raw identifier (source URL, page id or relative path).
	ID string

	// Title is the human-readable title.
	Title string

	// URI is the original location (URL or file path).
	URI string

	// Section is the handbook section the document belongs to.
	Section string

	// Content is the full normalised text before chunking.
	Content string

	// ContentHash is the hex sha256 of the normalised content.
	// Ingestion uses it to skip unchanged documents.
	ContentHash string

	// ModifiedAt is the last-modified timestamp reported by the source.
	ModifiedAt time.Time

	// Metadata contains arbitrary key-value pairs.
	Metadata map[string]any

	// CreatedAt is when the document was first indexed.
	CreatedAt time.Time

	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time
}

// Chunk represents a searchable unit within a document.
// A chunk is derived from exactly one Document and is only ever replaced
// together with all other chunks of that document.
type Chunk struct {
	// ID is the stable identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Ordinal is the position of the chunk within the document.
	Ordinal int

	// Offset is the byte offset of the chunk's first own unit
	// in the normalised document text.
	Offset int

	// Content is the text content of this chunk.
	Content string

	// Length is the chunk length in characters (runes).
	Length int

	// HeadingPath is the heading hierarchy in effect at the chunk start.
	HeadingPath []string

	// Section is the document section, or the innermost heading when the
	// document carries no section of its own.
	Section string

	// Oversized is set when a single unsplittable unit exceeded
	// the configured maximum chunk size.
	Oversized bool

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any
}

// Query is a single retrieval request. It has no identity beyond one call.
type Query struct {
	// Text is the raw query text.
	Text string

	// Embedding is the vector derived from Text.
	Embedding []float32
}
