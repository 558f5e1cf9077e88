package vector

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/stentorlabs/stentor/pkg/config"
)

// PineconeStore talks to a managed Pinecone index. Indexes are
// provisioned out of band; the store only reads and writes vectors.
type PineconeStore struct {
	client    *pinecone.Client
	index     string
	dimension int
	distance  string
}

// NewPineconeStore builds the API client. The index name comes from
// store.index, falling back to the collection name.
func NewPineconeStore(cfg config.StoreConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone requires an api_key")
	}

	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}

	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("creating pinecone client: %w", err)
	}

	index := cfg.Index
	if index == "" {
		index = cfg.Collection
	}

	return &PineconeStore{
		client:    client,
		index:     index,
		dimension: cfg.Dimension,
		distance:  cfg.Distance,
	}, nil
}

// connect resolves the index host and opens a data-plane connection.
func (s *PineconeStore) connect(ctx context.Context) (*pinecone.IndexConnection, error) {
	index, err := s.client.DescribeIndex(ctx, s.index)
	if err != nil {
		return nil, fmt.Errorf("describing index %s: %w", s.index, err)
	}
	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return nil, fmt.Errorf("connecting to index %s: %w", s.index, err)
	}
	return conn, nil
}

func (s *PineconeStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	var meta *pinecone.Metadata
	if len(metadata) > 0 {
		meta, err = structpb.NewStruct(metadata)
		if err != nil {
			return fmt.Errorf("converting metadata: %w", err)
		}
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       id,
		Values:   vector,
		Metadata: meta,
	}})
	if err != nil {
		return fmt.Errorf("upserting %s: %w", id, err)
	}
	return nil
}

func (s *PineconeStore) Search(ctx context.Context, vector []float32, k int, minScore float32) ([]Hit, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(k),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector == nil || match.Score < minScore {
			continue
		}
		metadata := map[string]any{}
		if match.Vector.Metadata != nil {
			metadata = match.Vector.Metadata.AsMap()
		}
		hits = append(hits, Hit{
			ID:       match.Vector.Id,
			Score:    match.Score,
			Text:     metadataText(metadata),
			Metadata: metadata,
		})
	}
	return hits, nil
}

func (s *PineconeStore) Info(ctx context.Context) (Info, error) {
	index, err := s.client.DescribeIndex(ctx, s.index)
	if err != nil {
		return Info{}, fmt.Errorf("describing index %s: %w", s.index, err)
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return Info{}, fmt.Errorf("connecting to index %s: %w", s.index, err)
	}
	defer func() { _ = conn.Close() }()

	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("reading index stats: %w", err)
	}

	return Info{
		Count:     int(stats.TotalVectorCount),
		Dimension: int(index.Dimension),
		Distance:  string(index.Metric),
	}, nil
}

// Close is a no-op: data-plane connections are opened per call.
func (s *PineconeStore) Close() error {
	return nil
}

var _ Store = (*PineconeStore)(nil)
