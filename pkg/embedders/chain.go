package embedders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stentorlabs/stentor/pkg/config"
)

// Chain walks embedders in configured order until one produces a
// vector. Embedding is breaker-free: failures are expected to be rare
// and retrieval degrades gracefully upstream.
type Chain struct {
	items   []Embedder
	timeout time.Duration
}

// BuildChain constructs the embed cascade for one knowledge base: the
// primary provider followed by its fallbacks. lookup resolves provider
// ids against the active configuration.
func BuildChain(cfg config.EmbeddingConfig, lookup func(id string) (*config.ProviderConfig, bool)) (*Chain, error) {
	ids := append([]string{cfg.Provider}, cfg.Fallbacks...)
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond

	items := make([]Embedder, 0, len(ids))
	for _, id := range ids {
		pc, ok := lookup(id)
		if !ok {
			return nil, fmt.Errorf("embedding provider %q not configured", id)
		}
		e, err := NewFromProvider(pc, cfg.Model, timeout)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return &Chain{items: items, timeout: timeout}, nil
}

// NewChain builds a chain from already-constructed embedders.
func NewChain(timeout time.Duration, items ...Embedder) *Chain {
	return &Chain{items: items, timeout: timeout}
}

// NewFromProvider builds the embedding adapter matching a provider's
// wire protocol. Anthropic has no embeddings endpoint.
func NewFromProvider(pc *config.ProviderConfig, model string, timeout time.Duration) (Embedder, error) {
	switch pc.Adapter {
	case config.AdapterOllama:
		return NewOllamaEmbedder(pc.ID, pc.BaseURL, model, timeout), nil
	case config.AdapterOpenAI:
		return NewOpenAIEmbedder(pc.ID, pc.BaseURL, pc.APIKey, model, timeout), nil
	case config.AdapterGemini:
		return NewGeminiEmbedder(pc.ID, pc.APIKey, model, timeout)
	case config.AdapterAnthropic:
		return nil, fmt.Errorf("provider %q: anthropic has no embeddings endpoint", pc.ID)
	default:
		return nil, fmt.Errorf("provider %q: unsupported embedding adapter %s", pc.ID, pc.Adapter)
	}
}

// Identity names the chain for cache keying: the primary embedder's
// provider and model.
func (c *Chain) Identity() string {
	if len(c.items) == 0 {
		return "empty"
	}
	return c.items[0].ID() + "/" + c.items[0].Model()
}

// Embed walks the chain. Every failure is collected; the joined error
// is returned only when no embedder succeeds.
func (c *Chain) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(c.items) == 0 {
		return nil, errors.New("embedding chain is empty")
	}

	var errs []error
	for _, e := range c.items {
		callCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		vec, err := e.Embed(callCtx, text)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return vec, nil
		}
		errs = append(errs, err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("embedding chain exhausted: %w", errors.Join(errs...))
}

// Close releases every embedder in the chain.
func (c *Chain) Close() error {
	var firstErr error
	for _, e := range c.items {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
