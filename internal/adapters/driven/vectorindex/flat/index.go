// Package flat provides an exact in-memory vector index.
//
// The contents live in an immutable state value published through an
// atomic pointer. Searches load the pointer and scan without locking.
// Writers are serialised by a mutex, copy the state, apply their change
// and publish the copy in one store, so a reader sees either the old or the
// new contents in full.
package flat

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Config holds configuration for the flat index.
type Config struct {
	// ModelVersion tags the contents. Build replaces it.
	ModelVersion string

	// Dimension fixes the vector size. Zero adopts the size of the first
	// vector written, and Build adopts the size of its first entry again.
	Dimension int
}

type entry struct {
	id   string
	vec  []float32
	meta domain.EntryMetadata
}

// state is never mutated after it is published.
type state struct {
	modelVersion string
	dimension    int
	entries      []entry // sorted by id
}

// Index is an exact cosine-similarity index.
type Index struct {
	mu     sync.Mutex
	cur    atomic.Pointer[state]
	closed atomic.Bool
	fixed  int // configured dimension, zero when adopted
}

// New creates an empty index.
func New(cfg Config) *Index {
	idx := &Index{fixed: cfg.Dimension}
	idx.cur.Store(&state{modelVersion: cfg.ModelVersion, dimension: cfg.Dimension})
	return idx
}

// Build replaces the whole index with entries. Without a configured
// dimension the entries only have to agree with the first of them, so a
// build for a new model may change the dimension.
func (idx *Index) Build(ctx context.Context, modelVersion string, entries []domain.IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.check(ctx); err != nil {
		return err
	}

	next := &state{modelVersion: modelVersion, dimension: idx.fixed, entries: make([]entry, 0, len(entries))}
	seen := make(map[string]int, len(entries))
	for i := range entries {
		e, err := next.prepare(&entries[i])
		if err != nil {
			return err
		}
		if j, dup := seen[e.id]; dup {
			next.entries[j] = e
			continue
		}
		seen[e.id] = len(next.entries)
		next.entries = append(next.entries, e)
	}
	sort.Slice(next.entries, func(i, j int) bool { return next.entries[i].id < next.entries[j].id })

	if err := ctx.Err(); err != nil {
		return err
	}
	idx.cur.Store(next)
	return nil
}

// Upsert inserts or replaces a single entry.
func (idx *Index) Upsert(ctx context.Context, e domain.IndexEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.check(ctx); err != nil {
		return err
	}

	next := idx.cur.Load().clone()
	prepared, err := next.prepare(&e)
	if err != nil {
		return err
	}

	i, found := next.find(prepared.id)
	if found {
		next.entries[i] = prepared
	} else {
		next.entries = append(next.entries, entry{})
		copy(next.entries[i+1:], next.entries[i:])
		next.entries[i] = prepared
	}
	idx.cur.Store(next)
	return nil
}

// ReplaceDocument swaps every entry of documentID for entries.
func (idx *Index) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.check(ctx); err != nil {
		return err
	}

	cur := idx.cur.Load()
	next := &state{
		modelVersion: cur.modelVersion,
		dimension:    cur.dimension,
		entries:      make([]entry, 0, len(cur.entries)+len(entries)),
	}

	fresh := make(map[string]entry, len(entries))
	for i := range entries {
		if entries[i].Metadata.DocumentID != documentID {
			return fmt.Errorf("%w: entry %s belongs to %q, not %q",
				domain.ErrInvalidInput, entries[i].ChunkID, entries[i].Metadata.DocumentID, documentID)
		}
		e, err := next.prepare(&entries[i])
		if err != nil {
			return err
		}
		fresh[e.id] = e
	}

	for _, e := range cur.entries {
		if e.meta.DocumentID == documentID {
			continue
		}
		if _, replaced := fresh[e.id]; replaced {
			continue
		}
		next.entries = append(next.entries, e)
	}
	for _, e := range fresh {
		next.entries = append(next.entries, e)
	}
	sort.Slice(next.entries, func(i, j int) bool { return next.entries[i].id < next.entries[j].id })

	idx.cur.Store(next)
	return nil
}

// Delete removes one entry.
func (idx *Index) Delete(ctx context.Context, chunkID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.check(ctx); err != nil {
		return err
	}

	cur := idx.cur.Load()
	i, found := cur.find(chunkID)
	if !found {
		return nil
	}

	next := cur.clone()
	next.entries = append(next.entries[:i], next.entries[i+1:]...)
	idx.cur.Store(next)
	return nil
}

// Search returns up to k entries by cosine similarity.
func (idx *Index) Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]driven.VectorHit, error) {
	if err := idx.check(ctx); err != nil {
		return nil, err
	}

	st := idx.cur.Load()
	if k <= 0 || len(st.entries) == 0 {
		return []driven.VectorHit{}, nil
	}
	if len(query) != st.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), st.dimension)
	}

	q := normalise(query)
	h := make(hitHeap, 0, min(k, len(st.entries)))
	for i := range st.entries {
		e := &st.entries[i]
		if !filter.Match(&e.meta) {
			continue
		}
		hit := driven.VectorHit{ChunkID: e.id, Similarity: dot(q, e.vec), Metadata: e.meta}
		if len(h) < k {
			heap.Push(&h, hit)
			continue
		}
		if better(hit, h[0]) {
			h[0] = hit
			heap.Fix(&h, 0)
		}
	}

	hits := make([]driven.VectorHit, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(&h).(driven.VectorHit)
	}
	return hits, nil
}

// Has reports whether every chunk id is present.
func (idx *Index) Has(ctx context.Context, chunkIDs []string) (bool, error) {
	if err := idx.check(ctx); err != nil {
		return false, err
	}
	st := idx.cur.Load()
	for _, id := range chunkIDs {
		if _, found := st.find(id); !found {
			return false, nil
		}
	}
	return true, nil
}

// Info reports the model version, dimension and size.
func (idx *Index) Info(ctx context.Context) (domain.IndexInfo, error) {
	if err := idx.check(ctx); err != nil {
		return domain.IndexInfo{}, err
	}
	st := idx.cur.Load()
	return domain.IndexInfo{ModelVersion: st.modelVersion, Dimension: st.dimension, Size: len(st.entries)}, nil
}

// Snapshot returns a copy of the current contents ordered by chunk id.
func (idx *Index) Snapshot(ctx context.Context) (*domain.IndexSnapshot, error) {
	if err := idx.check(ctx); err != nil {
		return nil, err
	}

	st := idx.cur.Load()
	snap := &domain.IndexSnapshot{
		ModelVersion: st.modelVersion,
		Dimension:    st.dimension,
		Entries:      make([]domain.IndexEntry, len(st.entries)),
		SavedAt:      time.Now(),
	}
	for i, e := range st.entries {
		snap.Entries[i] = domain.IndexEntry{
			ChunkID:  e.id,
			Vector:   append([]float32(nil), e.vec...),
			Metadata: e.meta,
		}
	}
	return snap, nil
}

// Close marks the index closed and drops its contents.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed.Swap(true) {
		return nil
	}
	st := idx.cur.Load()
	idx.cur.Store(&state{modelVersion: st.modelVersion, dimension: st.dimension})
	return nil
}

func (idx *Index) check(ctx context.Context) error {
	if idx.closed.Load() {
		return domain.ErrIndexClosed
	}
	return ctx.Err()
}

func (s *state) clone() *state {
	return &state{
		modelVersion: s.modelVersion,
		dimension:    s.dimension,
		entries:      append([]entry(nil), s.entries...),
	}
}

func (s *state) find(id string) (int, bool) {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].id >= id })
	return i, i < len(s.entries) && s.entries[i].id == id
}

// prepare validates an entry against the state's dimension, adopting the
// dimension when unset, and returns a normalised private copy.
func (s *state) prepare(e *domain.IndexEntry) (entry, error) {
	if e.ChunkID == "" {
		return entry{}, fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
	}
	if len(e.Vector) == 0 {
		return entry{}, fmt.Errorf("%w: chunk %s has no vector", domain.ErrDimensionMismatch, e.ChunkID)
	}
	if s.dimension == 0 {
		s.dimension = len(e.Vector)
	}
	if len(e.Vector) != s.dimension {
		return entry{}, fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, e.ChunkID, len(e.Vector), s.dimension)
	}
	return entry{id: e.ChunkID, vec: normalise(e.Vector), meta: e.Metadata}, nil
}

// normalise returns an L2-normalised copy. The zero vector stays zero.
func normalise(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// better orders hits by similarity descending then chunk id ascending.
func better(a, b driven.VectorHit) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ChunkID < b.ChunkID
}

// hitHeap keeps the worst retained hit at the root.
type hitHeap []driven.VectorHit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(driven.VectorHit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
