package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/config"
)

func openaiConfig(baseURL string) *config.ProviderConfig {
	return &config.ProviderConfig{
		ID:           "oai",
		Type:         config.ProviderCloud,
		Adapter:      config.AdapterOpenAI,
		BaseURL:      baseURL,
		Models:       []string{"gpt-4o-mini"},
		DefaultModel: "gpt-4o-mini",
		APIKey:       "sk-test",
		TimeoutMS:    5000,
		MaxTokens:    256,
	}
}

func TestOpenAIComplete(t *testing.T) {
	var gotReq openaiChatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(openaiChatResponse{
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{
				{Message: openaiMessage{Role: "assistant", Content: "Sure."}, FinishReason: "stop"},
			},
			Usage: openaiUsage{PromptTokens: 20, CompletionTokens: 3, TotalTokens: 23},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiConfig(server.URL))
	resp, err := p.Complete(context.Background(), ModelRequest{
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Sure.", resp.Text)
	assert.Equal(t, 20, resp.PromptTokens)
	assert.Equal(t, 3, resp.OutputTokens)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	assert.Equal(t, 256, gotReq.MaxTokens)
	assert.False(t, gotReq.Stream)
}

func TestOpenAICompleteAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiConfig(server.URL))
	_, err := p.Complete(context.Background(), ModelRequest{Model: "gpt-4o-mini"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonAuth, perr.Reason)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, "Incorrect API key provided", perr.Message)
}

func TestOpenAICompleteUnknownModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"The model 'gpt-9' does not exist"}}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiConfig(server.URL))
	_, err := p.Complete(context.Background(), ModelRequest{Model: "gpt-9"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonModelUnavailable, perr.Reason)
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openaiChatResponse{Model: "gpt-4o-mini"})
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiConfig(server.URL))
	_, err := p.Complete(context.Background(), ModelRequest{Model: "gpt-4o-mini"})

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ReasonEmptyResponse, perr.Reason)
}

func TestOpenAIPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(openaiConfig(server.URL))
	assert.NoError(t, p.Ping(context.Background()))
}

func TestOpenAIDefaultHost(t *testing.T) {
	cfg := openaiConfig("")
	p := NewOpenAIProvider(cfg)
	assert.Equal(t, defaultOpenAIHost, p.host)
}
