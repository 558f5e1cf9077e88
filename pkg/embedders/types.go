// Package embedders turns query text into vectors for retrieval. Each
// adapter reuses a configured provider's endpoint and credentials; the
// Chain walks the primary and its fallbacks without circuit breakers,
// and Cache fronts the chain with an LRU keyed by model and text.
package embedders

import (
	"context"
	"fmt"
)

// Embedder produces one vector per text.
type Embedder interface {
	// ID returns the backing provider id.
	ID() string

	// Model returns the embedding model name.
	Model() string

	// Embed converts text to a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases adapter resources.
	Close() error
}

// EmbedError wraps a failed embedding call with its provider id.
type EmbedError struct {
	Provider string
	Model    string
	Message  string
	Err      error
}

func (e *EmbedError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("embedder %s (%s): %s", e.Provider, e.Model, msg)
}

func (e *EmbedError) Unwrap() error { return e.Err }
