package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stentorlabs/stentor/pkg/config"
	"github.com/stentorlabs/stentor/pkg/registry"
	"github.com/stentorlabs/stentor/pkg/vector"
)

// Registry holds the constructed knowledge bases keyed by id and runs
// retrieval across them.
type Registry struct {
	*registry.BaseRegistry[*KnowledgeBase]
	retriever *Retriever
}

func NewRegistry(retriever *Retriever) *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[*KnowledgeBase](),
		retriever:    retriever,
	}
}

// LoadFromConfig constructs and registers every enabled knowledge
// base. One that fails to construct is recorded and skipped.
func (r *Registry) LoadFromConfig(cfg *config.Config) error {
	for _, kbCfg := range cfg.KnowledgeBases {
		if kbCfg == nil || !kbCfg.IsEnabled() {
			continue
		}

		kb, err := New(kbCfg, cfg.Retrieval, cfg.ProviderByID)
		if err != nil {
			r.RecordFailure(kbCfg.ID, err)
			continue
		}
		if err := r.Register(kbCfg.ID, kb); err != nil {
			_ = kb.Close()
			return fmt.Errorf("registering knowledge base %q: %w", kbCfg.ID, err)
		}
	}
	return nil
}

// Retrieve embeds the query once per knowledge base, searches them
// concurrently, and assembles the merged hits by descending score.
// Partial base failures are tolerated as long as something answered;
// ErrNoRelevantContext means every reachable base came back empty.
func (r *Registry) Retrieve(ctx context.Context, query string) (*Context, error) {
	bases := r.ListAll()
	if len(bases) == 0 {
		return nil, ErrNoRelevantContext
	}

	var (
		mu     sync.Mutex
		merged []vector.Hit
		errs   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, kb := range bases {
		kb := kb
		g.Go(func() error {
			hits, err := kb.Query(gctx, query)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			for i := range hits {
				if hits[i].Metadata == nil {
					hits[i].Metadata = map[string]any{}
				}
				hits[i].Metadata["knowledge_base"] = kb.ID()
			}
			merged = append(merged, hits...)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(merged) == 0 {
		if len(errs) == len(bases) && len(errs) > 0 {
			return nil, fmt.Errorf("all knowledge bases failed: %w", errors.Join(errs...))
		}
		return nil, ErrNoRelevantContext
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	return r.retriever.Assemble(merged)
}

// KBHealth is one knowledge base's reachability snapshot.
type KBHealth struct {
	ID        string `json:"id"`
	Reachable bool   `json:"reachable"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
}

// Health pings every registered base. Used by the health endpoint; an
// unreachable store degrades overall health without failing it.
func (r *Registry) Health(ctx context.Context) []KBHealth {
	names := r.Names()

	out := make([]KBHealth, 0, len(names))
	for _, name := range names {
		kb, ok := r.Get(name)
		if !ok {
			continue
		}
		h := KBHealth{ID: name}
		info, err := kb.Info(ctx)
		if err != nil {
			h.Error = err.Error()
		} else {
			h.Reachable = true
			h.Count = info.Count
		}
		out = append(out, h)
	}
	return out
}

// CloseAll releases every registered knowledge base.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, kb := range r.ListAll() {
		if err := kb.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
