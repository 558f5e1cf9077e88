package vector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/stentorlabs/stentor/pkg/config"
)

// QdrantStore talks to a Qdrant server over gRPC. The collection is
// created on first write if it does not exist.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	distance   string

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore connects to the configured server. No network call
// happens here; the first operation surfaces connectivity problems.
func NewQdrantStore(cfg config.StoreConfig) (*QdrantStore, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client for %s:%d: %w", host, port, err)
	}

	return &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		distance:   cfg.Distance,
	}, nil
}

// ensureCollection creates the collection once per process lifetime.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		exists, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			s.ensureErr = fmt.Errorf("checking collection %q: %w", s.collection, err)
			return
		}
		if exists {
			return
		}
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimension),
				Distance: qdrantDistance(s.distance),
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			s.ensureErr = fmt.Errorf("creating collection %q: %w", s.collection, err)
		}
	})
	return s.ensureErr
}

func (s *QdrantStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for key, value := range metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return fmt.Errorf("converting metadata key %s: %w", key, err)
		}
		payload[key] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upserting %s: %w", id, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int, minScore float32) ([]Hit, error) {
	req := &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if minScore > 0 {
		req.ScoreThreshold = &minScore
	}

	resp, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching collection: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, point := range resp.Result {
		metadata := qdrantPayloadToMap(point.Payload)
		hits = append(hits, Hit{
			ID:       qdrantPointID(point.Id),
			Score:    point.Score,
			Text:     metadataText(metadata),
			Metadata: metadata,
		})
	}
	return hits, nil
}

func (s *QdrantStore) Info(ctx context.Context) (Info, error) {
	info := Info{Dimension: s.dimension, Distance: s.distance}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return Info{}, fmt.Errorf("checking collection %q: %w", s.collection, err)
	}
	if !exists {
		return info, nil
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection})
	if err != nil {
		return Info{}, fmt.Errorf("counting collection %q: %w", s.collection, err)
	}
	info.Count = int(count)
	return info, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// qdrantDistance maps the config metric names onto the gRPC enum.
func qdrantDistance(name string) qdrant.Distance {
	switch name {
	case "dot":
		return qdrant.Distance_Dot
	case "euclidean":
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func qdrantPointID(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func qdrantPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			metadata[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			metadata[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			metadata[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			metadata[key] = v.BoolValue
		case *qdrant.Value_ListValue:
			if v.ListValue == nil {
				continue
			}
			list := make([]any, 0, len(v.ListValue.Values))
			for _, item := range v.ListValue.Values {
				switch iv := item.Kind.(type) {
				case *qdrant.Value_StringValue:
					list = append(list, iv.StringValue)
				case *qdrant.Value_IntegerValue:
					list = append(list, iv.IntegerValue)
				case *qdrant.Value_DoubleValue:
					list = append(list, iv.DoubleValue)
				case *qdrant.Value_BoolValue:
					list = append(list, iv.BoolValue)
				default:
					list = append(list, item)
				}
			}
			metadata[key] = list
		default:
			metadata[key] = value
		}
	}
	return metadata
}

var _ Store = (*QdrantStore)(nil)
