// Package vector defines the store contract the retrieval pipeline
// searches against, with embedded (chromem) and remote (qdrant,
// pinecone) backends. Stores are bound to a single collection at
// construction; ingestion happens out of band.
package vector

import "context"

// Hit is one search match.
type Hit struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Info describes the bound collection.
type Info struct {
	Count     int    `json:"count"`
	Dimension int    `json:"dimension"`
	Distance  string `json:"distance"`
}

// Store is the vector backend contract. Implementations must be safe
// for concurrent use.
type Store interface {
	// Upsert inserts or replaces one vector. The text shown in search
	// results travels in metadata under the "text" key.
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error

	// Search returns up to k hits scoring at or above minScore,
	// ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int, minScore float32) ([]Hit, error)

	// Info reports collection size and geometry. A reachable but empty
	// store returns a zero count, not an error.
	Info(ctx context.Context) (Info, error)

	Close() error
}

// metadataText pulls the display text out of stored metadata.
func metadataText(metadata map[string]any) string {
	if t, ok := metadata["text"].(string); ok {
		return t
	}
	return ""
}
