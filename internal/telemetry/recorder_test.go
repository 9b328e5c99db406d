package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{10 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP250},
		{300 * time.Millisecond, BucketP1000},
		{4999 * time.Millisecond, BucketP5000},
		{5 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.latency))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"quantum", "computing"}, ExtractTerms("  Quantum of computing "))
	assert.Empty(t, ExtractTerms("a an"))
}

func TestRecorder_Overview(t *testing.T) {
	// Given: a memory-only recorder
	r := NewRecorder(nil, Config{FlushInterval: 0})
	defer r.Close()

	// When: recording a mix of searches
	r.Record(SearchEvent{Query: "Quantum Computing", Type: "comprehensive", Modalities: []string{"text", "image"}, ResultCount: 4, Latency: 20 * time.Millisecond})
	r.Record(SearchEvent{Query: "quantum  computing", Type: "quick", Modalities: []string{"text"}, ResultCount: 4, Latency: 10 * time.Millisecond, CacheHit: true})
	r.Record(SearchEvent{Query: "nothing here", Type: "quick", Modalities: []string{"text"}, Latency: 2 * time.Second, Degraded: true})

	// Then: the overview aggregates them
	o := r.Overview()
	assert.Equal(t, int64(3), o.TotalSearches)
	assert.Equal(t, map[string]int64{"comprehensive": 1, "quick": 2}, o.SearchTypes)
	assert.Equal(t, map[string]int64{"text": 3, "image": 1}, o.Modalities)
	assert.Equal(t, []Count{{Key: "quantum computing", Count: 2}, {Key: "nothing here", Count: 1}}, o.TopQueries)
	assert.Equal(t, []string{"nothing here"}, o.ZeroResultQueries)
	assert.Equal(t, int64(1), o.ZeroResultCount)
	assert.Equal(t, int64(2), o.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), o.LatencyDistribution[BucketP5000])
	assert.Equal(t, int64(1), o.CacheHits)
	assert.InDelta(t, 1.0/3, o.CacheHitRate, 1e-9)
	assert.InDelta(t, 1.0/3, o.ExactRepeatRate, 1e-9)
	assert.InDelta(t, 676.667, o.AvgLatencyMs, 0.01)
	assert.Equal(t, int64(1), o.DegradedCount)
	assert.InDelta(t, 33.33, o.ZeroResultPercentage(), 0.01)
}

func TestRecorder_TopQueriesLimit(t *testing.T) {
	r := NewRecorder(nil, Config{})
	defer r.Close()

	for _, q := range []string{"b query", "a query", "b query", "c query"} {
		r.Record(SearchEvent{Query: q, ResultCount: 1})
	}

	assert.Equal(t, []Count{{Key: "b query", Count: 2}, {Key: "a query", Count: 1}}, r.TopQueries(2))
}

func TestRecorder_IgnoresAfterClose(t *testing.T) {
	r := NewRecorder(nil, Config{})
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	r.Record(SearchEvent{Query: "late"})

	assert.Zero(t, r.Overview().TotalSearches)
}

func TestRecorder_FlushWritesDeltasOnce(t *testing.T) {
	// Given: a recorder backed by SQLite
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	r := NewRecorder(s, Config{FlushInterval: 0})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	// When: recording and flushing twice
	r.Record(SearchEvent{Query: "solar panels", Type: "quick", ResultCount: 0, Latency: 30 * time.Millisecond})
	r.Record(SearchEvent{Query: "Solar Panels", Type: "quick", ResultCount: 2, Latency: 30 * time.Millisecond})
	require.NoError(t, r.Flush())
	require.NoError(t, r.Flush())

	// Then: each delta is stored exactly once
	top, err := s.TopQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []Count{{Key: "solar panels", Count: 2}}, top)

	types, err := s.TypeCounts("2026-03-01", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"quick": 2}, types)

	latencies, err := s.LatencyCounts("2026-03-01", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latencies[BucketP50])

	zero, err := s.ZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"solar panels"}, zero)

	require.NoError(t, r.Close())
}

func TestRecorder_SeedsFromStore(t *testing.T) {
	// Given: a database holding counts from a previous run
	path := filepath.Join(t.TempDir(), "telemetry.db")
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertQueryCounts(map[string]int64{"climate change": 7, "renewable energy": 3}))
	require.NoError(t, s.Close())

	// When: a new recorder opens it
	s, err = OpenSQLiteStore(path)
	require.NoError(t, err)
	r := NewRecorder(s, Config{})
	defer r.Close()

	// Then: the learned list survives the restart
	assert.Equal(t, []Count{{Key: "climate change", Count: 7}, {Key: "renewable energy", Count: 3}}, r.TopQueries(5))
}

func TestRecorder_AutoFlush(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	r := NewRecorder(s, Config{FlushInterval: 10 * time.Millisecond})
	defer r.Close()

	r.Record(SearchEvent{Query: "ticker query", Type: "quick", ResultCount: 1})

	assert.Eventually(t, func() bool {
		top, err := s.TopQueries(1)
		return err == nil && len(top) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
