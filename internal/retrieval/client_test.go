package retrieval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hypersearch/internal/embed"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/store"
)

// fakeIndex serves canned hits or a failure, optionally after a delay.
type fakeIndex struct {
	hits  []store.VectorHit
	err   error
	delay time.Duration
	calls int
	last  store.VectorFilter
}

func (f *fakeIndex) Upsert(context.Context, []store.VectorRecord) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, _ []float32, k int, filter store.VectorFilter) ([]store.VectorHit, error) {
	f.calls++
	f.last = filter
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) Health(context.Context) error { return f.err }
func (f *fakeIndex) Name() string                 { return "fake" }
func (f *fakeIndex) Close() error                 { return nil }

func hit(id string, score float32) store.VectorHit {
	return store.VectorHit{
		Document: store.Document{ID: id, Title: "title " + id, Content: "content " + id, Modality: "text"},
		Score:    score,
	}
}

func TestClient_FiltersByMinScore(t *testing.T) {
	// Given: hits on both sides of the threshold
	idx := &fakeIndex{hits: []store.VectorHit{hit("a", 0.9), hit("b", 0.6), hit("c", 0.4)}}
	c := NewClient(embed.NewStaticEmbedder(16), idx, Config{})

	// When: retrieving with MinScore 0.5
	got, err := c.Retrieve(context.Background(), Request{Text: "quantum", TopK: 10, MinScore: 0.5})

	// Then: only the two strong hits survive, tagged with the source
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "retrieval:fake", got[0].SourceID)
	assert.Equal(t, "a", got[0].Metadata["id"])
	assert.InDelta(t, 0.6, got[1].Score, 1e-6)
}

func TestClient_ZeroMinScoreKeepsEverything(t *testing.T) {
	idx := &fakeIndex{hits: []store.VectorHit{hit("a", 0.9), hit("c", 0.1)}}
	c := NewClient(embed.NewStaticEmbedder(16), idx, Config{})

	got, err := c.Retrieve(context.Background(), Request{Text: "q", MinScore: 0})

	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClient_FailureIsRetrievalUnavailable(t *testing.T) {
	idx := &fakeIndex{err: fmt.Errorf("connection refused")}
	c := NewClient(embed.NewStaticEmbedder(16), idx, Config{})

	_, err := c.Retrieve(context.Background(), Request{Text: "q"})

	assert.ErrorIs(t, err, errors.ErrRetrievalUnavailable)
}

func TestClient_TimeoutIsRetrievalUnavailable(t *testing.T) {
	// Given: a backend slower than the client timeout
	idx := &fakeIndex{hits: []store.VectorHit{hit("a", 0.9)}, delay: time.Second}
	c := NewClient(embed.NewStaticEmbedder(16), idx, Config{Timeout: 20 * time.Millisecond})

	// When: retrieving
	start := time.Now()
	_, err := c.Retrieve(context.Background(), Request{Text: "q"})

	// Then: the client gives up at its own timeout
	assert.ErrorIs(t, err, errors.ErrRetrievalUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	idx := &fakeIndex{err: fmt.Errorf("boom")}
	c := NewClient(embed.NewStaticEmbedder(16), idx, Config{BreakerFailures: 2, BreakerReset: time.Minute})

	for i := 0; i < 2; i++ {
		_, _ = c.Retrieve(context.Background(), Request{Text: "q"})
	}
	_, err := c.Retrieve(context.Background(), Request{Text: "q"})

	assert.ErrorIs(t, err, errors.ErrRetrievalUnavailable)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Equal(t, 2, idx.calls)
	assert.Error(t, c.Health(context.Background()))
}

func TestClient_NoIndexConfigured(t *testing.T) {
	c := NewClient(embed.NewStaticEmbedder(16), nil, Config{})

	_, err := c.Retrieve(context.Background(), Request{Text: "q"})

	assert.False(t, c.Enabled())
	assert.Equal(t, "retrieval:none", c.SourceID())
	assert.ErrorIs(t, err, errors.ErrRetrievalUnavailable)
	assert.Error(t, c.Health(context.Background()))
}

func TestClient_EndToEndWithHNSW(t *testing.T) {
	// Given: an HNSW index populated through the static embedder
	ctx := context.Background()
	emb := embed.NewStaticEmbedder(64)
	idx := store.NewHNSWIndex(store.HNSWConfig{Dimensions: 64})
	docs := []store.Document{
		{ID: "q1", Title: "Quantum computing", Content: "qubits and quantum gates", Modality: "text"},
		{ID: "b1", Title: "Bread", Content: "sourdough starter recipe", Modality: "text"},
	}
	records := make([]store.VectorRecord, 0, len(docs))
	for _, d := range docs {
		vec, err := emb.Embed(ctx, d.Title+" "+d.Content)
		require.NoError(t, err)
		records = append(records, store.VectorRecord{Document: d, Embedding: vec})
	}
	require.NoError(t, idx.Upsert(ctx, records))
	c := NewClient(emb, idx, Config{})

	// When: searching for a quantum query
	got, err := c.Retrieve(ctx, Request{Text: "quantum computing qubits", TopK: 2})

	// Then: the quantum document ranks first
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "q1", got[0].Metadata["id"])
	assert.Equal(t, "retrieval:hnsw", got[0].SourceID)
	assert.NoError(t, c.Health(ctx))
}

func TestClient_PassesFiltersAndModalities(t *testing.T) {
	idx := &fakeIndex{hits: []store.VectorHit{hit("a", 0.9)}}
	c := NewClient(embed.NewStaticEmbedder(16), idx, Config{})

	_, err := c.Retrieve(context.Background(), Request{
		Text:       "q",
		Filters:    map[string]string{"lang": "en"},
		Modalities: []string{"text"},
	})

	require.NoError(t, err)
	assert.Equal(t, store.VectorFilter{
		Metadata:   map[string]string{"lang": "en"},
		Modalities: []string{"text"},
	}, idx.last)
}

func TestClient_TextOnlyRequestSkipsOtherModalities(t *testing.T) {
	// Given: a text and an image document about the same subject
	ctx := context.Background()
	emb := embed.NewStaticEmbedder(64)
	idx := store.NewHNSWIndex(store.HNSWConfig{Dimensions: 64})
	docs := []store.Document{
		{ID: "t1", Title: "Quantum computing", Content: "qubits and superposition", Modality: "text"},
		{ID: "i1", Title: "Quantum chip photo", Content: "a quantum computing chip", Modality: "image"},
	}
	for _, d := range docs {
		vec, err := emb.Embed(ctx, d.Title+" "+d.Content)
		require.NoError(t, err)
		require.NoError(t, idx.Upsert(ctx, []store.VectorRecord{{Document: d, Embedding: vec}}))
	}
	c := NewClient(emb, idx, Config{})

	// When: retrieving for a text-only query
	got, err := c.Retrieve(ctx, Request{Text: "quantum computing", TopK: 5, Modalities: []string{"text"}})

	// Then: only the text document comes back
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, cand := range got {
		assert.Equal(t, query.ModalityText, cand.Modality)
		assert.Equal(t, "t1", cand.Metadata["id"])
	}
}
