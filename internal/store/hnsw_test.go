package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id, modality string, vec ...float32) VectorRecord {
	return VectorRecord{
		Document:  Document{ID: id, Title: "doc " + id, Content: "content " + id, Modality: modality},
		Embedding: vec,
	}
}

// TS01: Upsert and Search
func TestHNSWIndex_UpsertAndSearch(t *testing.T) {
	// Given: an index with a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 4})
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Upsert(context.Background(), []VectorRecord{
		rec("a", "text", 1, 0, 0, 0),
		rec("b", "text", 0, 1, 0, 0),
		rec("c", "text", 0.9, 0.1, 0, 0),
	}))

	// When: I search for [1,0,0,0] with k=2
	hits, err := idx.Search(context.Background(), []float32{1, 0, 0, 0}, 2, VectorFilter{})
	require.NoError(t, err)

	// Then: a then c, with documents attached
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Document.ID)
	assert.Equal(t, "c", hits[1].Document.ID)
	assert.Equal(t, "doc a", hits[0].Document.Title)
	assert.Greater(t, hits[0].Score, float32(0.99))
}

// TS02: Upsert replaces an existing ID
func TestHNSWIndex_UpsertReplaces(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 4})
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []VectorRecord{rec("a", "text", 1, 0, 0, 0), rec("b", "text", 0, 0, 1, 0)}))
	require.NoError(t, idx.Upsert(ctx, []VectorRecord{rec("a", "text", 0, 1, 0, 0)}))

	hits, err := idx.Search(ctx, []float32{0, 1, 0, 0}, 1, VectorFilter{})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Document.ID)
	assert.Equal(t, 2, idx.Count())
}

// TS03: Filters restrict hits
func TestHNSWIndex_SearchFilters(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 2})
	ctx := context.Background()
	image := rec("img", "image", 1, 0)
	image.Document.Metadata = map[string]string{"lang": "en"}
	require.NoError(t, idx.Upsert(ctx, []VectorRecord{rec("txt", "text", 1, 0.01), image}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 5, VectorFilter{Metadata: map[string]string{"modality": "image", "lang": "en"}})

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "img", hits[0].Document.ID)
}

func TestHNSWIndex_SearchRestrictsModalities(t *testing.T) {
	// Given: a text and an image document pointing the same way
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 2})
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []VectorRecord{
		rec("img", "image", 1, 0),
		rec("txt", "text", 1, 0.05),
		rec("aud", "audio", 0.9, 0.1),
	}))

	// When: searching for text and audio only
	hits, err := idx.Search(ctx, []float32{1, 0}, 5, VectorFilter{Modalities: []string{"text", "audio"}})

	// Then: the closer image document is excluded
	require.NoError(t, err)
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Document.ID
	}
	assert.ElementsMatch(t, []string{"txt", "aud"}, ids)
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 4})

	err := idx.Upsert(context.Background(), []VectorRecord{rec("a", "text", 1, 0)})
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})

	_, err = idx.Search(context.Background(), []float32{1}, 1, VectorFilter{})
	assert.ErrorAs(t, err, &ErrDimensionMismatch{})
}

func TestHNSWIndex_EmptySearch(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 2})

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 3, VectorFilter{})

	require.NoError(t, err)
	assert.Empty(t, hits)
}

// TS04: Save and Load round trip
func TestHNSWIndex_SaveLoad(t *testing.T) {
	// Given: a saved index
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 4})
	require.NoError(t, idx.Upsert(context.Background(), []VectorRecord{
		rec("a", "text", 1, 0, 0, 0),
		rec("b", "code", 0, 1, 0, 0),
	}))
	require.NoError(t, idx.Save(path))

	// When: loading it back
	loaded, err := LoadHNSWIndex(path, HNSWConfig{Dimensions: 4})
	require.NoError(t, err)

	// Then: documents and neighbours survive
	assert.Equal(t, 2, loaded.Count())
	hits, err := loaded.Search(context.Background(), []float32{0, 1, 0, 0}, 1, VectorFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Document.ID)
	assert.Equal(t, "code", hits[0].Document.Modality)
}

func TestLoadHNSWIndex_MissingFileIsEmpty(t *testing.T) {
	idx, err := LoadHNSWIndex(filepath.Join(t.TempDir(), "absent.hnsw"), HNSWConfig{Dimensions: 8})

	require.NoError(t, err)
	assert.Equal(t, 0, idx.Count())
}

func TestHNSWIndex_ClosedIsUnhealthy(t *testing.T) {
	idx := NewHNSWIndex(HNSWConfig{Dimensions: 2})
	require.NoError(t, idx.Health(context.Background()))

	require.NoError(t, idx.Close())

	assert.Error(t, idx.Health(context.Background()))
	assert.NoError(t, idx.Close())
}
