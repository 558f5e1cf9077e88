// Package knowledge binds vector stores to embedding chains and runs
// the retrieval pipeline behind the rag strategy.
package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/embedders"
	"github.com/stentorlabs/stentor/pkg/observability"
	"github.com/stentorlabs/stentor/pkg/vector"
)

// KnowledgeBase is one searchable corpus: a vector store plus the
// embedding chain that turns query text into vectors.
type KnowledgeBase struct {
	id          string
	description string
	store       vector.Store
	embedder    *embedders.Cache
	topK        int
	minScore    float32
}

// New binds a configured knowledge base. Per-base top_k and
// score_threshold override the retrieval defaults.
func New(cfg *config.KnowledgeBaseConfig, retrieval config.RetrievalConfig, lookup func(string) (*config.ProviderConfig, bool)) (*KnowledgeBase, error) {
	store, err := vector.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("knowledge base %s: %w", cfg.ID, err)
	}

	chain, err := embedders.BuildChain(cfg.Embedding, lookup)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("knowledge base %s: %w", cfg.ID, err)
	}

	cache, err := embedders.NewCache(chain, retrieval.EmbeddingCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("knowledge base %s: %w", cfg.ID, err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = retrieval.TopK
	}
	minScore := cfg.ScoreThreshold
	if minScore == 0 {
		minScore = retrieval.ScoreThreshold
	}

	return &KnowledgeBase{
		id:          cfg.ID,
		description: cfg.Description,
		store:       store,
		embedder:    cache,
		topK:        topK,
		minScore:    float32(minScore),
	}, nil
}

func (kb *KnowledgeBase) ID() string          { return kb.id }
func (kb *KnowledgeBase) Description() string { return kb.description }

// Query embeds the text and searches the bound store. Hits come back
// ordered by descending similarity, already filtered by the score
// threshold.
func (kb *KnowledgeBase) Query(ctx context.Context, text string) ([]vector.Hit, error) {
	vec, err := kb.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query for %s: %w", kb.id, err)
	}

	start := time.Now()
	hits, err := kb.store.Search(ctx, vec, kb.topK, kb.minScore)
	observability.GetGlobalMetrics().RecordRetrieval(ctx, kb.id, len(hits), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", kb.id, err)
	}
	return hits, nil
}

// Ping checks that the store answers at all.
func (kb *KnowledgeBase) Ping(ctx context.Context) error {
	_, err := kb.store.Info(ctx)
	return err
}

// Info reports the bound collection's size and geometry.
func (kb *KnowledgeBase) Info(ctx context.Context) (vector.Info, error) {
	return kb.store.Info(ctx)
}

func (kb *KnowledgeBase) Close() error {
	err := kb.store.Close()
	if cerr := kb.embedder.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
