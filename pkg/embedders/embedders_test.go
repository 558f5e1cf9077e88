package embedders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/config"
)

type scriptedEmbedder struct {
	id     string
	model  string
	vector []float32
	err    error
	calls  atomic.Int64
}

func (s *scriptedEmbedder) ID() string    { return s.id }
func (s *scriptedEmbedder) Model() string { return s.model }
func (s *scriptedEmbedder) Close() error  { return nil }
func (s *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func TestOllamaEmbedder(t *testing.T) {
	var gotReq ollamaEmbedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	e := NewOllamaEmbedder("local", server.URL, "nomic-embed-text", 5*time.Second)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "nomic-embed-text", gotReq.Model)
	assert.Equal(t, "hello", gotReq.Prompt)
}

func TestOllamaEmbedderErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: "model missing"})
	}))
	defer server.Close()

	e := NewOllamaEmbedder("local", server.URL, "", 5*time.Second)
	_, err := e.Embed(context.Background(), "x")

	var eerr *EmbedError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "local", eerr.Provider)
	assert.Contains(t, eerr.Error(), "model missing")
}

func TestOpenAIEmbedder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2],"index":0}],"model":"text-embedding-3-small"}`))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("oai", server.URL, "sk-test", "", 5*time.Second)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, defaultOpenAIEmbedModel, e.Model())
}

func TestOpenAIEmbedderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	e := NewOpenAIEmbedder("oai", server.URL, "sk", "", 5*time.Second)
	_, err := e.Embed(context.Background(), "x")

	var eerr *EmbedError
	require.ErrorAs(t, err, &eerr)
	assert.Contains(t, eerr.Message, "429")
}

func TestChainWalksFallbacks(t *testing.T) {
	primary := &scriptedEmbedder{id: "p1", model: "m", err: errors.New("down")}
	fallback := &scriptedEmbedder{id: "p2", model: "m", vector: []float32{0.5}}

	chain := NewChain(time.Second, primary, fallback)
	vec, err := chain.Embed(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5}, vec)
	assert.Equal(t, int64(1), primary.calls.Load())
	assert.Equal(t, int64(1), fallback.calls.Load())
}

func TestChainExhaustion(t *testing.T) {
	e1 := &scriptedEmbedder{id: "p1", model: "m", err: errors.New("one")}
	e2 := &scriptedEmbedder{id: "p2", model: "m", err: errors.New("two")}

	chain := NewChain(time.Second, e1, e2)
	_, err := chain.Embed(context.Background(), "q")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
	assert.Contains(t, err.Error(), "one")
	assert.Contains(t, err.Error(), "two")
}

func TestChainIdentity(t *testing.T) {
	chain := NewChain(time.Second, &scriptedEmbedder{id: "p1", model: "nomic"})
	assert.Equal(t, "p1/nomic", chain.Identity())
}

func TestBuildChainResolvesProviders(t *testing.T) {
	providers := map[string]*config.ProviderConfig{
		"local": {ID: "local", Adapter: config.AdapterOllama, BaseURL: "http://localhost:11434"},
		"oai":   {ID: "oai", Adapter: config.AdapterOpenAI, APIKey: "sk"},
	}
	lookup := func(id string) (*config.ProviderConfig, bool) {
		pc, ok := providers[id]
		return pc, ok
	}

	chain, err := BuildChain(config.EmbeddingConfig{
		Provider:  "local",
		Model:     "nomic-embed-text",
		Fallbacks: []string{"oai"},
		TimeoutMS: 1000,
	}, lookup)
	require.NoError(t, err)
	assert.Equal(t, "local/nomic-embed-text", chain.Identity())
	assert.Len(t, chain.items, 2)
}

func TestBuildChainUnknownProvider(t *testing.T) {
	lookup := func(id string) (*config.ProviderConfig, bool) { return nil, false }
	_, err := BuildChain(config.EmbeddingConfig{Provider: "ghost"}, lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildChainRejectsAnthropic(t *testing.T) {
	lookup := func(id string) (*config.ProviderConfig, bool) {
		return &config.ProviderConfig{ID: "claude", Adapter: config.AdapterAnthropic}, true
	}
	_, err := BuildChain(config.EmbeddingConfig{Provider: "claude"}, lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no embeddings endpoint")
}

func TestCacheHitsSkipChain(t *testing.T) {
	e := &scriptedEmbedder{id: "p1", model: "m", vector: []float32{1}}
	cache, err := NewCache(NewChain(time.Second, e), 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		vec, err := cache.Embed(context.Background(), "same question")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, vec)
	}

	assert.Equal(t, int64(1), e.calls.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestCacheDistinctTexts(t *testing.T) {
	e := &scriptedEmbedder{id: "p1", model: "m", vector: []float32{1}}
	cache, err := NewCache(NewChain(time.Second, e), 8)
	require.NoError(t, err)

	_, _ = cache.Embed(context.Background(), "a")
	_, _ = cache.Embed(context.Background(), "b")

	assert.Equal(t, int64(2), e.calls.Load())
	assert.Equal(t, 2, cache.Len())
}

func TestCacheDisabled(t *testing.T) {
	e := &scriptedEmbedder{id: "p1", model: "m", vector: []float32{1}}
	cache, err := NewCache(NewChain(time.Second, e), 0)
	require.NoError(t, err)

	_, _ = cache.Embed(context.Background(), "a")
	_, _ = cache.Embed(context.Background(), "a")

	assert.Equal(t, int64(2), e.calls.Load())
	assert.Equal(t, 0, cache.Len())
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	e := &scriptedEmbedder{id: "p1", model: "m", err: errors.New("down")}
	cache, err := NewCache(NewChain(time.Second, e), 8)
	require.NoError(t, err)

	_, err = cache.Embed(context.Background(), "a")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}
