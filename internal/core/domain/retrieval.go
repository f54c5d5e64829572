package domain

// RetrieveOptions configures a retrieval call.
type RetrieveOptions struct {
	// TopK is the maximum number of chunks returned.
	// Zero uses the configured default.
	TopK int

	// Filter constrains candidates by metadata.
	Filter *Filter

	// MinScore overrides the configured minimum relevance when set.
	MinScore *float64
}

// RetrievedChunk is one ranked hit of a retrieval call.
type RetrievedChunk struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the final relevance score after re-ranking.
	Score float64

	// Similarity is the raw cosine similarity reported by the index.
	Similarity float64

	// Content is the chunk text.
	Content string

	// DocumentID is the source document.
	DocumentID string

	// Title is the source document title.
	Title string

	// URI is the source document location.
	URI string

	// Section is the chunk section.
	Section string

	// Ordinal is the chunk position within its document.
	Ordinal int
}

// RetrievalResult is the ordered outcome of a retrieval call.
// Chunks are sorted by descending Score, ties by ascending ChunkID.
type RetrievalResult struct {
	// Query is the query text the result was produced for.
	Query string

	// Chunks are the ranked hits, at most TopK of them.
	Chunks []RetrievedChunk
}

// Empty reports whether nothing relevant was found.
// An empty result is a first-class outcome, not an error.
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Chunks) == 0
}

// ChunkIDs returns the chunk ids in rank order.
func (r *RetrievalResult) ChunkIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.Chunks))
	for i := range r.Chunks {
		ids[i] = r.Chunks[i].ChunkID
	}
	return ids
}

// Answer is the outcome of a full question answering round.
type Answer struct {
	// Text is the generated answer. Empty when no generator is configured.
	Text string

	// Prompt is the assembled prompt sent to the generator.
	Prompt string

	// Result is the retrieval result the prompt was assembled from.
	Result *RetrievalResult

	// Insufficient is set when retrieval found nothing relevant and the
	// prompt asked the generator to say so.
	Insufficient bool
}
