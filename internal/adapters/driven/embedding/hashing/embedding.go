// Package hashing provides an offline embedder based on feature hashing.
//
// Each text is reduced to content words, lightly stemmed, and every word is
// hashed into a fixed number of signed buckets. The vector is the
// L2-normalised bag of words with sub-linear term frequency. Texts that
// share no content words therefore have a similarity of zero, which keeps
// unrelated questions below any positive relevance threshold.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.Embedder = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "hashing-v1"
	DefaultDimensions = 4096
)

// Config holds configuration for the hashing embedder.
type Config struct {
	// Model is the version tag stored with the index (default: hashing-v1).
	Model string

	// Dimensions is the number of hash buckets (default: 4096).
	Dimensions int
}

// EmbeddingService generates embeddings by feature hashing.
// It is deterministic and safe for concurrent use.
type EmbeddingService struct {
	model      string
	dimensions int
}

// NewEmbeddingService creates a new hashing embedder.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	return &EmbeddingService{model: cfg.Model, dimensions: cfg.Dimensions}
}

// Embed generates a vector embedding for the given text.
// Text without content words yields the zero vector.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, term := range Terms(text) {
		counts[term]++
	}

	vec := make([]float64, s.dimensions)
	for term, n := range counts {
		h := hash(term)
		bucket := h % uint64(s.dimensions)
		weight := 1 + math.Log(float64(n))
		if h>>63 == 1 {
			weight = -weight
		}
		vec[bucket] += weight
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, s.dimensions)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// EmbedBatch generates embeddings for multiple texts in input order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the model version tag.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping always succeeds; the model runs in process.
func (s *EmbeddingService) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

func hash(term string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	return h.Sum64()
}

// Terms returns the content words of text: lower-cased, apostrophes
// removed, split on anything that is not a letter or digit, stop words
// dropped and plural endings stripped.
func Terms(text string) []string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("'", "", "\u2019", "").Replace(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := fields[:0]
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		terms = append(terms, stem(f))
	}
	return terms
}

// stem strips regular English plural endings.
func stem(word string) string {
	switch {
	case len(word) > 4 && strings.HasSuffix(word, "ies"):
		return word[:len(word)-3] + "y"
	case len(word) > 3 && strings.HasSuffix(word, "s") &&
		!strings.HasSuffix(word, "ss") && !strings.HasSuffix(word, "us") && !strings.HasSuffix(word, "is"):
		return word[:len(word)-1]
	default:
		return word
	}
}

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are as at be
		because been before being below between both but by can could did do
		does doing down during each few for from further had has have having
		he her here hers herself him himself his how i if in into is it its
		itself just me more most my myself no nor not now of off on once only
		or other our ours ourselves out over own same she should so some such
		than that the their theirs them themselves then there these they this
		those through to too under until up very was we were what when where
		which while who whom why will with would you your yours yourself
		yourselves s t can will dont im ive youre whats wheres hows
		get got may might must shall also please tell know`) {
		stopWords[w] = true
	}
}
