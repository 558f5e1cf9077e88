package embedders

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiEmbedModel = "text-embedding-004"

// GeminiEmbedder embeds through the official genai SDK.
type GeminiEmbedder struct {
	id      string
	model   string
	timeout time.Duration
	client  *genai.Client
}

func NewGeminiEmbedder(id, apiKey, model string, timeout time.Duration) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedder %q: gemini requires an api_key", id)
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("embedder %q: creating gemini client: %w", id, err)
	}
	if model == "" {
		model = defaultGeminiEmbedModel
	}
	return &GeminiEmbedder{id: id, model: model, timeout: timeout, client: client}, nil
}

func (e *GeminiEmbedder) ID() string    { return e.id }
func (e *GeminiEmbedder) Model() string { return e.model }
func (e *GeminiEmbedder) Close() error  { return nil }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Err: err}
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, &EmbedError{Provider: e.id, Model: e.model, Message: "empty embedding"}
	}
	return resp.Embeddings[0].Values, nil
}

var _ Embedder = (*GeminiEmbedder)(nil)
