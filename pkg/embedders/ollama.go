package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Ollama's llama runner crashes under concurrent embedding requests,
// so every call through any OllamaEmbedder is serialized process-wide.
var ollamaEmbedMu sync.Mutex

const defaultOllamaEmbedModel = "nomic-embed-text"

// OllamaEmbedder calls POST /api/embeddings on an Ollama host.
type OllamaEmbedder struct {
	id     string
	host   string
	model  string
	client *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func NewOllamaEmbedder(id, host, model string, timeout time.Duration) *OllamaEmbedder {
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	if model == "" {
		model = defaultOllamaEmbedModel
	}
	return &OllamaEmbedder{
		id:     id,
		host:   host,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *OllamaEmbedder) ID() string    { return e.id }
func (e *OllamaEmbedder) Model() string { return e.model }
func (e *OllamaEmbedder) Close() error  { return nil }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ollamaEmbedMu.Lock()
	defer ollamaEmbedMu.Unlock()

	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &EmbedError{
			Provider: e.id,
			Model:    e.model,
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "decode response", Err: err}
	}
	if out.Error != "" {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: out.Error}
	}
	if len(out.Embedding) == 0 {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "empty embedding"}
	}
	return out.Embedding, nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
