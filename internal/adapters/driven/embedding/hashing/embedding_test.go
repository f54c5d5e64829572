package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	s := NewEmbeddingService(Config{})

	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, DefaultDimensions, s.Dimensions())
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}

func TestTerms(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Where is Dr Keppens' office?", []string{"dr", "keppen", "office"}},
		{"Office hours: Dr Keppens, Room 4.12", []string{"office", "hour", "dr", "keppen", "room", "4", "12"}},
		{"What is the capital of France?", []string{"capital", "france"}},
		{"Policies and classes", []string{"policy", "classe"}},
		{"the and of", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Terms(tt.text)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmbed_UnitLengthAndDeterministic(t *testing.T) {
	s := NewEmbeddingService(Config{Dimensions: 512})
	ctx := context.Background()

	a, err := s.Embed(ctx, "Coursework deadlines and extensions")
	require.NoError(t, err)
	b, err := s.Embed(ctx, "Coursework deadlines and extensions")
	require.NoError(t, err)

	assert.Len(t, a, 512)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, math.Sqrt(cosine(a, a)), 1e-5)
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	s := NewEmbeddingService(Config{Dimensions: 64})

	v, err := s.Embed(context.Background(), "  the of and ")
	require.NoError(t, err)
	assert.Len(t, v, 64)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEmbed_SimilarityOrdering(t *testing.T) {
	s := NewEmbeddingService(Config{})
	ctx := context.Background()

	query, err := s.Embed(ctx, "Where is Dr Keppens' office?")
	require.NoError(t, err)
	relevant, err := s.Embed(ctx, "Office hours: Dr Keppens, Room 4.12, Tue 2-4pm")
	require.NoError(t, err)
	unrelated, err := s.Embed(ctx, "Late coursework receives a penalty of five marks per day.")
	require.NoError(t, err)

	assert.Greater(t, cosine(query, relevant), 0.4)
	assert.Less(t, cosine(query, unrelated), 0.1)
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	s := NewEmbeddingService(Config{Dimensions: 128})
	ctx := context.Background()
	texts := []string{"library opening hours", "exam board", "library opening hours"}

	batch, err := s.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := s.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestEmbed_CancelledContext(t *testing.T) {
	s := NewEmbeddingService(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Embed(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}
