package vector

import (
	"fmt"

	"github.com/stentorlabs/stentor/pkg/config"
)

// New builds the store a knowledge base is configured with.
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendChromem:
		return NewChromemStore(cfg)
	case config.BackendQdrant:
		return NewQdrantStore(cfg)
	case config.BackendPinecone:
		return NewPineconeStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s (supported: chromem, qdrant, pinecone)", cfg.Backend)
	}
}
