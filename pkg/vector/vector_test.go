package vector

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stentorlabs/stentor/pkg/config"
)

func memStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(config.StoreConfig{Collection: "kb", Dimension: 3, Distance: "cosine"})
	require.NoError(t, err)
	return store
}

func TestChromemRoundTrip(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]any{"text": "alpha doc", "source": "a.md"}))
	require.NoError(t, store.Upsert(ctx, "b", []float32{0, 1, 0}, map[string]any{"text": "beta doc"}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "alpha doc", hits[0].Text)
	assert.Equal(t, "a.md", hits[0].Metadata["source"])
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestChromemMinScoreFilters(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "near", []float32{1, 0, 0}, map[string]any{"text": "near"}))
	require.NoError(t, store.Upsert(ctx, "far", []float32{0, 1, 0}, map[string]any{"text": "far"}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 5, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "near", hits[0].ID)
}

func TestChromemEmptySearch(t *testing.T) {
	store := memStore(t)

	hits, err := store.Search(context.Background(), []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemUpsertReplaces(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]any{"text": "v1"}))
	require.NoError(t, store.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]any{"text": "v2"}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v2", hits[0].Text)
}

func TestChromemInfo(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "a", []float32{1, 0, 0}, map[string]any{"text": "x"}))

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, 3, info.Dimension)
	assert.Equal(t, "cosine", info.Distance)
}

func TestChromemPersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StoreConfig{Collection: "kb", Dimension: 3, Path: dir}

	store, err := NewChromemStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), "a", []float32{1, 0, 0}, map[string]any{"text": "kept"}))
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(cfg)
	require.NoError(t, err)
	info, err := reopened.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)
}

func TestFactoryDispatch(t *testing.T) {
	store, err := New(config.StoreConfig{Backend: config.BackendChromem, Collection: "kb", Dimension: 3})
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, store)

	_, err = New(config.StoreConfig{Backend: "milvus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported vector backend")

	_, err = New(config.StoreConfig{Backend: config.BackendPinecone})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestQdrantDistanceMapping(t *testing.T) {
	assert.Equal(t, qdrant.Distance_Cosine, qdrantDistance("cosine"))
	assert.Equal(t, qdrant.Distance_Dot, qdrantDistance("dot"))
	assert.Equal(t, qdrant.Distance_Euclid, qdrantDistance("euclidean"))
	assert.Equal(t, qdrant.Distance_Cosine, qdrantDistance(""))
}

func TestQdrantPayloadConversion(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"text":  {Kind: &qdrant.Value_StringValue{StringValue: "chunk"}},
		"page":  {Kind: &qdrant.Value_IntegerValue{IntegerValue: 7}},
		"score": {Kind: &qdrant.Value_DoubleValue{DoubleValue: 0.5}},
		"live":  {Kind: &qdrant.Value_BoolValue{BoolValue: true}},
	}

	metadata := qdrantPayloadToMap(payload)

	assert.Equal(t, "chunk", metadata["text"])
	assert.Equal(t, int64(7), metadata["page"])
	assert.Equal(t, 0.5, metadata["score"])
	assert.Equal(t, true, metadata["live"])
	assert.Equal(t, "chunk", metadataText(metadata))
}
