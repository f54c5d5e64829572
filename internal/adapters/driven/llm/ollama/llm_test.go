package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/ollamaapi"
	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

func TestNewGenerator_Defaults(t *testing.T) {
	g := NewGenerator(Config{})
	assert.Equal(t, ollamaapi.DefaultBaseURL, g.api.BaseURL())
	assert.Equal(t, DefaultModel, g.ModelName())
	assert.Equal(t, DefaultTimeout, g.api.Timeout())
	assert.NoError(t, g.Close())
}

func TestGenerate_SendsChat(t *testing.T) {
	var raw map[string]any
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r.Body)
		require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: "  The registry is in Room 4.12 [1].\n"},
			Done:    true,
		})
	}))
	defer server.Close()

	g := NewGenerator(Config{BaseURL: server.URL + "/", Model: "llama3.2"})
	text, err := g.Generate(context.Background(), "Question: where is the registry?",
		driven.GenerateOptions{System: "Cite excerpts as [n].", MaxTokens: 64, StopWords: []string{"\n\n"}})
	require.NoError(t, err)

	assert.Equal(t, "The registry is in Room 4.12 [1].", text)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Cite excerpts as [n].", got.Messages[0].Content)
	assert.Equal(t, "Question: where is the registry?", got.Messages[1].Content)
	assert.Equal(t, 64, got.Options.NumPredict)
	assert.Equal(t, []string{"\n\n"}, got.Options.Stop)

	// zero temperature must reach the server
	options := raw["options"].(map[string]any)
	assert.Contains(t, options, "temperature")
	assert.Equal(t, 0.0, options["temperature"])
}

func TestGenerate_WarnsWhenCutOff(t *testing.T) {
	var logs bytes.Buffer
	logger.SetOutput(&logs)
	defer logger.SetOutput(os.Stderr)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Message:    chatMessage{Content: "Fees are due"},
			Done:       true,
			DoneReason: "length",
		})
	}))
	defer server.Close()

	text, err := NewGenerator(Config{BaseURL: server.URL}).Generate(context.Background(), "p", driven.GenerateOptions{MaxTokens: 3})
	require.NoError(t, err)
	assert.Equal(t, "Fees are due", text)
	assert.Contains(t, logs.String(), "cut off at 3 tokens")
}

func TestGenerate_EmptyAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Done: true})
	}))
	defer server.Close()

	_, err := NewGenerator(Config{BaseURL: server.URL}).Generate(context.Background(), "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestGenerate_NoSystemMessage(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}, Done: true})
	}))
	defer server.Close()

	_, err := NewGenerator(Config{BaseURL: server.URL}).Generate(context.Background(), "p", driven.GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewGenerator(Config{BaseURL: server.URL}).Generate(context.Background(), "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	assert.ErrorContains(t, err, "model not found")
}

func TestGenerate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewGenerator(Config{BaseURL: url}).Generate(context.Background(), "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	assert.ErrorContains(t, err, "unreachable")
}

func TestGenerate_Deadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewGenerator(Config{BaseURL: server.URL}).Generate(ctx, "p", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest"},{"name":"mistral:7b"}]}`))
	}))
	defer server.Close()

	assert.NoError(t, NewGenerator(Config{BaseURL: server.URL}).Ping(context.Background()))
	assert.NoError(t, NewGenerator(Config{BaseURL: server.URL, Model: "mistral:7b"}).Ping(context.Background()))

	err := NewGenerator(Config{BaseURL: server.URL, Model: "qwen2"}).Ping(context.Background())
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	assert.ErrorContains(t, err, "ollama pull qwen2")
}
