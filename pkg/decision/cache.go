package decision

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cache memoizes decisions for identical messages. Entries expire
// after the configured TTL so rule changes surface without a restart.
type cache struct {
	lru *expirable.LRU[string, Decision]
}

// newCache builds a cache of the given size and TTL. A non-positive
// size or TTL disables caching.
func newCache(size, ttlSeconds int) *cache {
	if size <= 0 || ttlSeconds <= 0 {
		return &cache{}
	}
	return &cache{
		lru: expirable.NewLRU[string, Decision](size, nil, time.Duration(ttlSeconds)*time.Second),
	}
}

func (c *cache) get(key string) (*Decision, bool) {
	if c.lru == nil {
		return nil, false
	}
	d, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return &d, true
}

func (c *cache) add(key string, d *Decision) {
	if c.lru == nil || d == nil {
		return
	}
	c.lru.Add(key, *d)
}

func (c *cache) len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// normalize collapses whitespace so trivially reformatted messages
// share a cache slot.
func normalize(lower string) string {
	return strings.Join(strings.Fields(lower), " ")
}
