package vector

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/stentorlabs/stentor/pkg/config"
)

// ChromemStore keeps vectors in process memory via chromem-go, with
// optional directory persistence. It is the zero-config default: no
// external service, cosine similarity only.
type ChromemStore struct {
	db        *chromem.DB
	col       *chromem.Collection
	dimension int
}

// NewChromemStore opens (or creates) the configured collection. A
// non-empty path turns on per-write persistence under that directory.
func NewChromemStore(cfg config.StoreConfig) (*ChromemStore, error) {
	var db *chromem.DB
	var err error

	if cfg.Path != "" {
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("opening chromem store at %s: %w", cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	// Vectors arrive pre-computed from the embedding chain; chromem
	// must never embed on its own.
	rejectEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromem store received text without a vector")
	}

	col, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbed)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", cfg.Collection, err)
	}

	return &ChromemStore{db: db, col: col, dimension: cfg.Dimension}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	strMeta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
	}

	doc := chromem.Document{
		ID:        id,
		Content:   metadataText(metadata),
		Metadata:  strMeta,
		Embedding: vector,
	}

	if err := s.col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upserting %s: %w", id, err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, vector []float32, k int, minScore float32) ([]Hit, error) {
	// chromem rejects result counts above the collection size.
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := s.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("searching collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.Similarity < minScore {
			continue
		}
		metadata := make(map[string]any, len(r.Metadata))
		for mk, mv := range r.Metadata {
			metadata[mk] = mv
		}
		hits = append(hits, Hit{
			ID:       r.ID,
			Score:    r.Similarity,
			Text:     r.Content,
			Metadata: metadata,
		})
	}
	return hits, nil
}

func (s *ChromemStore) Info(ctx context.Context) (Info, error) {
	return Info{
		Count:     s.col.Count(),
		Dimension: s.dimension,
		Distance:  "cosine",
	}, nil
}

// Close is a no-op: persistence, when enabled, happens on every write.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
