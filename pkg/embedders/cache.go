package embedders

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stentorlabs/stentor/pkg/observability"
)

// Cache fronts a chain with an LRU keyed by the chain identity and a
// hash of the text, so repeated queries skip the network. Entries are
// vectors, which makes even a small cache worthwhile.
type Cache struct {
	chain *Chain
	lru   *lru.Cache[string, []float32]
}

// NewCache wraps the chain with an LRU of the given size. Size zero or
// negative disables caching and returns a pass-through.
func NewCache(chain *Chain, size int) (*Cache, error) {
	c := &Cache{chain: chain}
	if size > 0 {
		l, err := lru.New[string, []float32](size)
		if err != nil {
			return nil, err
		}
		c.lru = l
	}
	return c, nil
}

// Embed returns a cached vector when available, otherwise walks the
// chain and stores the result.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.lru == nil {
		return c.chain.Embed(ctx, text)
	}

	key := c.key(text)
	if vec, ok := c.lru.Get(key); ok {
		observability.GetGlobalMetrics().RecordCacheLookup(ctx, "embedding", true)
		return vec, nil
	}
	observability.GetGlobalMetrics().RecordCacheLookup(ctx, "embedding", false)

	vec, err := c.chain.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, vec)
	return vec, nil
}

// Len reports how many vectors are cached.
func (c *Cache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Close releases the underlying chain.
func (c *Cache) Close() error { return c.chain.Close() }

func (c *Cache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.chain.Identity() + ":" + hex.EncodeToString(sum[:])
}
