// Package chunker splits documents into bounded, sentence-aligned chunks.
package chunker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultMaxChunkSize is the default maximum chunk length in runes.
const DefaultMaxChunkSize = 1200

// DefaultOverlapUnits is the default number of units carried into the next chunk.
const DefaultOverlapUnits = 1

// chunkNamespace seeds the name-based chunk ids.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/custodia-labs/handbook-rag/chunk"))

// Processor splits document content into chunks.
// It implements the PostProcessor interface.
type Processor struct {
	maxChunkSize int
	overlapUnits int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithMaxChunkSize sets the maximum chunk length in runes.
func WithMaxChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.maxChunkSize = size
		}
	}
}

// WithOverlapUnits sets how many trailing units of a chunk are repeated at
// the start of the next one.
func WithOverlapUnits(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.overlapUnits = n
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		maxChunkSize: DefaultMaxChunkSize,
		overlapUnits: DefaultOverlapUnits,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// MaxChunkSize returns the configured bound.
func (p *Processor) MaxChunkSize() int {
	return p.maxChunkSize
}

// Process splits the document content into chunks.
// Input chunks are ignored; this processor creates new chunks from document content.
// The output depends only on the document ID, its content, its section and
// the processor options.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, domain.ErrInvalidInput
	}

	units := segment(Normalise(doc.Content))
	if len(units) == 0 {
		return nil, nil
	}

	var (
		chunks   []domain.Chunk
		current  []unit // units of the chunk being packed
		own      int    // index in current of the first unit that is not overlap
		length   int    // rune length of current joined
		body     int    // non-heading units in current
		headings = make([]string, 7)
		path     []string
	)

	flush := func() {
		if own >= len(current) {
			return
		}
		chunks = append(chunks, p.newChunk(doc, current, own, path, false))
	}

	start := func(u unit, carry []unit) {
		current = append(current[:0:0], carry...)
		current = append(current, u)
		own = len(carry)
		length = joinedLength(current)
		body = len(current)
		if u.level > 0 {
			body--
		}
		path = headingPath(headings)
	}

	for _, u := range units {
		if u.level > 0 {
			headings[u.level] = u.text
			for l := u.level + 1; l < len(headings); l++ {
				headings[l] = ""
			}
		}

		if u.runes > p.maxChunkSize {
			flush()
			current = nil
			chunks = append(chunks, p.newChunk(doc, []unit{u}, 0, headingPath(headings), true))
			continue
		}

		switch {
		case len(current) == 0:
			start(u, nil)
		case u.level > 0 && body == 0 && length+len(u.sep)+u.runes <= p.maxChunkSize:
			// Consecutive headings stay together with the text that follows.
			current = append(current, u)
			length += len(u.sep) + u.runes
			path = headingPath(headings)
		case u.level > 0:
			// A heading opens a new section, so the chunk ends here.
			flush()
			start(u, nil)
		case length+len(u.sep)+u.runes <= p.maxChunkSize:
			current = append(current, u)
			length += len(u.sep) + u.runes
			body++
		default:
			flush()
			start(u, p.carry(current, u))
		}
	}
	flush()

	for i := range chunks {
		chunks[i].Ordinal = i
	}
	return chunks, nil
}

// carry returns the trailing units of prev to repeat before next, trimmed
// from the front until the new chunk fits the bound. Headings are never
// carried since they already appear in the heading path.
func (p *Processor) carry(prev []unit, next unit) []unit {
	if p.overlapUnits == 0 {
		return nil
	}

	from := len(prev) - p.overlapUnits
	if from < 0 {
		from = 0
	}
	carried := make([]unit, 0, len(prev)-from)
	for _, u := range prev[from:] {
		if u.level == 0 {
			carried = append(carried, u)
		}
	}

	for len(carried) > 0 && joinedLength(append(carried[:len(carried):len(carried)], next)) > p.maxChunkSize {
		carried = carried[1:]
	}
	return carried
}

func (p *Processor) newChunk(doc *domain.Document, units []unit, own int, path []string, oversized bool) domain.Chunk {
	text := join(units)
	offset := units[own].offset

	section := doc.Section
	if section == "" && len(path) > 0 {
		section = path[len(path)-1]
	}

	return domain.Chunk{
		ID:          chunkID(doc.ID, offset, text),
		DocumentID:  doc.ID,
		Offset:      offset,
		Content:     text,
		Length:      joinedLength(units),
		HeadingPath: path,
		Section:     section,
		Oversized:   oversized,
		Metadata:    make(map[string]any),
	}
}

// chunkID derives a stable id from the document, the chunk position and
// the chunk text. Re-chunking unchanged text yields the same ids, while an
// edited passage gets a new one.
func chunkID(documentID string, offset int, text string) string {
	sum := sha256.Sum256([]byte(text))
	name := documentID + "\x00" + strconv.Itoa(offset) + "\x00" + hex.EncodeToString(sum[:])
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func join(units []unit) string {
	n := 0
	for i, u := range units {
		if i > 0 {
			n += len(u.sep)
		}
		n += len(u.text)
	}

	buf := make([]byte, 0, n)
	for i, u := range units {
		if i > 0 {
			buf = append(buf, u.sep...)
		}
		buf = append(buf, u.text...)
	}
	return string(buf)
}

// joinedLength returns the rune length of join(units).
// Separators are ASCII, so their byte length equals their rune length.
func joinedLength(units []unit) int {
	n := 0
	for i, u := range units {
		if i > 0 {
			n += len(u.sep)
		}
		n += u.runes
	}
	return n
}

func headingPath(headings []string) []string {
	var path []string
	for _, h := range headings[1:] {
		if h != "" {
			path = append(path, h)
		}
	}
	return path
}
