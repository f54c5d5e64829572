package domain

import "time"

// EntryMetadata is the lightweight metadata stored next to a vector.
// It is enough to filter and display a hit without loading chunk text.
type EntryMetadata struct {
	DocumentID string
	Ordinal    int
	Length     int
	Section    string
	ModifiedAt time.Time
}

// IndexEntry is a single vector in the index.
type IndexEntry struct {
	ChunkID  string
	Vector   []float32
	Metadata EntryMetadata
}

// NewIndexEntry builds the index entry for an embedded chunk.
func NewIndexEntry(chunk *Chunk, modifiedAt time.Time) IndexEntry {
	return IndexEntry{
		ChunkID: chunk.ID,
		Vector:  chunk.Embedding,
		Metadata: EntryMetadata{
			DocumentID: chunk.DocumentID,
			Ordinal:    chunk.Ordinal,
			Length:     chunk.Length,
			Section:    chunk.Section,
			ModifiedAt: modifiedAt,
		},
	}
}

// IndexInfo describes the published state of a vector index.
type IndexInfo struct {
	// ModelVersion is the embedding model the index was built with.
	ModelVersion string

	// Dimension is the vector size shared by every entry.
	Dimension int

	// Size is the number of entries.
	Size int
}

// IndexSnapshot is the persisted form of an index.
type IndexSnapshot struct {
	ModelVersion string
	Dimension    int
	Entries      []IndexEntry
	SavedAt      time.Time
}

// Filter constrains search results by entry metadata.
// Empty fields do not constrain.
type Filter struct {
	// DocumentIDs keeps only entries from these documents.
	DocumentIDs []string

	// Sections keeps only entries from these sections.
	Sections []string
}

// IsEmpty reports whether the filter constrains nothing.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.DocumentIDs) == 0 && len(f.Sections) == 0)
}

// Match reports whether the metadata satisfies the filter.
func (f *Filter) Match(m *EntryMetadata) bool {
	if f.IsEmpty() {
		return true
	}
	if len(f.DocumentIDs) > 0 && !contains(f.DocumentIDs, m.DocumentID) {
		return false
	}
	if len(f.Sections) > 0 && !contains(f.Sections, m.Section) {
		return false
	}
	return true
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
