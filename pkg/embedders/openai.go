package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIEmbedModel = "text-embedding-3-small"

// OpenAIEmbedder calls POST /embeddings on an OpenAI-compatible host.
type OpenAIEmbedder struct {
	id     string
	host   string
	apiKey string
	model  string
	client *http.Client
}

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func NewOpenAIEmbedder(id, host, apiKey, model string, timeout time.Duration) *OpenAIEmbedder {
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		host = "https://api.openai.com/v1"
	}
	if model == "" {
		model = defaultOpenAIEmbedModel
	}
	return &OpenAIEmbedder{
		id:     id,
		host:   host,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *OpenAIEmbedder) ID() string    { return e.id }
func (e *OpenAIEmbedder) Model() string { return e.model }
func (e *OpenAIEmbedder) Close() error  { return nil }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(openaiEmbedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

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

	var out openaiEmbedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "decode response", Err: err}
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "empty embedding"}
	}
	return out.Data[0].Embedding, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)
