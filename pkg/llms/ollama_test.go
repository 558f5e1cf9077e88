package llms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/config"
)

func ollamaConfig(baseURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		ID:           "local",
		Type:         config.ProviderLocal,
		Adapter:      config.AdapterOllama,
		BaseURL:      baseURL,
		Models:       []string{"llama3.2", "qwen2.5"},
		DefaultModel: "llama3.2",
		TimeoutMS:    5000,
		MaxTokens:    512,
	}
}

func TestOllamaComplete(t *testing.T) {
	var gotReq ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:           "llama3.2",
			Message:         ollamaMessage{Role: "assistant", Content: "Hello there."},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	resp, err := p.Complete(context.Background(), ModelRequest{
		Model: "llama3.2",
		Messages: []Message{
			{Role: RoleSystem, Content: "Be brief."},
			{Role: RoleUser, Content: "hi"},
		},
		Temperature: 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", resp.Text)
	assert.Equal(t, "llama3.2", resp.Model)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 5, resp.OutputTokens)

	assert.False(t, gotReq.Stream)
	assert.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	require.NotNil(t, gotReq.Options)
	assert.InDelta(t, 0.2, gotReq.Options.Temperature, 1e-9)
	assert.Equal(t, 512, gotReq.Options.NumPredict)
}

func TestOllamaCompleteErrorInBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error": `model "llama9" not found, try pulling it first`,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	_, err := p.Complete(context.Background(), ModelRequest{Model: "llama9"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonModelUnavailable, perr.Reason)
	assert.Equal(t, "local", perr.Provider)
	assert.Equal(t, "llama9", perr.Model)
}

func TestOllamaCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "   "},
			Done:    true,
		})
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	_, err := p.Complete(context.Background(), ModelRequest{Model: "llama3.2"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonEmptyResponse, perr.Reason)
}

func TestOllamaCompleteNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	_, err := p.Complete(context.Background(), ModelRequest{Model: "missing"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonModelUnavailable, perr.Reason)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
}

func TestOllamaCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, ModelRequest{Model: "llama3.2"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonTimeout, perr.Reason)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOllamaCompleteCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Complete(ctx, ModelRequest{Model: "llama3.2"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonCancelled, perr.Reason)
}

func TestOllamaPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	assert.NoError(t, p.Ping(context.Background()))
}

func TestOllamaPingDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewOllamaProvider(ollamaConfig(server.URL))
	assert.Error(t, p.Ping(context.Background()))
}

func TestOllamaModelCandidates(t *testing.T) {
	cfg := ollamaConfig("http://localhost:11434")
	cfg.Models = []string{"qwen2.5", "llama3.2", "qwen2.5"}
	cfg.DefaultModel = "llama3.2"

	p := NewOllamaProvider(cfg)
	assert.Equal(t, []string{"llama3.2", "qwen2.5"}, p.Models())
}
