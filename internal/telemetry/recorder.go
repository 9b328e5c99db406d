package telemetry

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/hypersearch/internal/ring"
)

// Store persists telemetry aggregates.
type Store interface {
	// SaveTypeCounts adds daily search-type counts.
	SaveTypeCounts(date string, counts map[string]int64) error

	// UpsertQueryCounts adds normalized query frequencies.
	UpsertQueryCounts(counts map[string]int64) error

	// TopQueries returns the most frequent normalized queries.
	TopQueries(limit int) ([]Count, error)

	// AddZeroResultQuery appends to the bounded zero-result log.
	AddZeroResultQuery(query string, ts time.Time) error

	// ZeroResultQueries returns recent zero-result queries, newest first.
	ZeroResultQueries(limit int) ([]string, error)

	// SaveLatencyCounts adds daily latency histogram counts.
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error

	// LatencyCounts sums the histogram over a date range.
	LatencyCounts(from, to string) (map[LatencyBucket]int64, error)

	Close() error
}

// Config configures a Recorder.
type Config struct {
	TopCapacity         int           // distinct queries and terms tracked (default 500)
	ZeroResultsCapacity int           // default 100
	FlushInterval       time.Duration // 0 disables auto-flush
}

// DefaultConfig returns the recorder defaults.
func DefaultConfig() Config {
	return Config{
		TopCapacity:         500,
		ZeroResultsCapacity: 100,
		FlushInterval:       time.Minute,
	}
}

// Recorder aggregates SearchEvents in memory and periodically flushes the
// deltas to a Store. Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	types       map[string]int64
	modalities  map[string]int64
	queries     *lru.Cache[string, int64]
	terms       *lru.Cache[string, int64]
	zeroResults *ring.Buffer[string]
	latencies   map[LatencyBucket]int64
	total       int64
	zeroCount   int64
	cacheHits   int64
	degraded    int64
	repeats     int64
	latencySum  time.Duration
	since       time.Time

	// Deltas not yet flushed.
	pendingTypes     map[string]int64
	pendingQueries   map[string]int64
	pendingLatencies map[LatencyBucket]int64
	pendingZero      []SearchEvent

	store  Store
	cfg    Config
	stopCh chan struct{}
	done   chan struct{}
	closed bool
	now    func() time.Time
}

// NewRecorder creates a recorder. store may be nil for memory-only
// telemetry. Persisted query counts seed the in-memory top list.
func NewRecorder(store Store, cfg Config) *Recorder {
	defaults := DefaultConfig()
	if cfg.TopCapacity <= 0 {
		cfg.TopCapacity = defaults.TopCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = defaults.ZeroResultsCapacity
	}

	queries, _ := lru.New[string, int64](cfg.TopCapacity)
	terms, _ := lru.New[string, int64](cfg.TopCapacity)
	r := &Recorder{
		types:       make(map[string]int64),
		modalities:  make(map[string]int64),
		queries:     queries,
		terms:       terms,
		zeroResults: ring.New[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		store:       store,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		now:         time.Now,
	}
	r.since = r.now()
	r.resetPending()

	if store != nil {
		if top, err := store.TopQueries(cfg.TopCapacity); err != nil {
			slog.Warn("telemetry_seed_failed", slog.String("error", err.Error()))
		} else {
			for i := len(top) - 1; i >= 0; i-- {
				r.queries.Add(top[i].Key, top[i].Count)
			}
		}
	}

	if cfg.FlushInterval > 0 && store != nil {
		go r.flushLoop()
	} else {
		close(r.done)
	}
	return r
}

func (r *Recorder) resetPending() {
	r.pendingTypes = make(map[string]int64)
	r.pendingQueries = make(map[string]int64)
	r.pendingLatencies = make(map[LatencyBucket]int64)
	r.pendingZero = nil
}

func (r *Recorder) flushLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-r.stopCh:
			return
		}
	}
}

// Record captures one search. It never blocks on I/O.
func (r *Recorder) Record(e SearchEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	normalized := NormalizeQuery(e.Query)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.total++
	r.types[e.Type]++
	r.pendingTypes[e.Type]++
	for _, m := range e.Modalities {
		r.modalities[m]++
	}

	if normalized != "" {
		count, seen := r.queries.Get(normalized)
		if seen {
			r.repeats++
		}
		r.queries.Add(normalized, count+1)
		r.pendingQueries[normalized]++
	}
	for _, term := range ExtractTerms(normalized) {
		count, _ := r.terms.Get(term)
		r.terms.Add(term, count+1)
	}

	if e.IsZeroResult() {
		r.zeroCount++
		r.zeroResults.Push(e.Query)
		r.pendingZero = append(r.pendingZero, e)
	}

	bucket := LatencyToBucket(e.Latency)
	r.latencies[bucket]++
	r.pendingLatencies[bucket]++
	r.latencySum += e.Latency

	if e.CacheHit {
		r.cacheHits++
	}
	if e.Degraded {
		r.degraded++
	}
}

// TopQueries returns up to n normalized queries by frequency, ties broken
// alphabetically.
func (r *Recorder) TopQueries(n int) []Count {
	r.mu.Lock()
	defer r.mu.Unlock()
	return topN(r.queries, n)
}

func topN(c *lru.Cache[string, int64], n int) []Count {
	out := make([]Count, 0, c.Len())
	for _, key := range c.Keys() {
		if count, ok := c.Peek(key); ok {
			out = append(out, Count{Key: key, Count: count})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Overview returns the current aggregates.
func (r *Recorder) Overview() *Overview {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := &Overview{
		TotalSearches:       r.total,
		SearchTypes:         copyCounts(r.types),
		Modalities:          copyCounts(r.modalities),
		TopQueries:          topN(r.queries, 10),
		TopTerms:            topN(r.terms, 10),
		ZeroResultQueries:   r.zeroResults.Newest(0),
		ZeroResultCount:     r.zeroCount,
		LatencyDistribution: make(map[LatencyBucket]int64, len(r.latencies)),
		CacheHits:           r.cacheHits,
		DegradedCount:       r.degraded,
		Since:               r.since,
	}
	for k, v := range r.latencies {
		o.LatencyDistribution[k] = v
	}
	if r.total > 0 {
		o.AvgLatencyMs = float64(r.latencySum.Microseconds()) / 1000 / float64(r.total)
		o.CacheHitRate = float64(r.cacheHits) / float64(r.total)
		o.ExactRepeatRate = float64(r.repeats) / float64(r.total)
	}
	return o
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Flush writes the deltas recorded since the previous flush. On failure the
// deltas are dropped so a later flush never double-counts.
func (r *Recorder) Flush() error {
	if r.store == nil {
		return nil
	}

	r.mu.Lock()
	types, queries, latencies, zero := r.pendingTypes, r.pendingQueries, r.pendingLatencies, r.pendingZero
	r.resetPending()
	today := r.now().Format("2006-01-02")
	r.mu.Unlock()

	if len(types) > 0 {
		if err := r.store.SaveTypeCounts(today, types); err != nil {
			return err
		}
	}
	if err := r.store.UpsertQueryCounts(queries); err != nil {
		return err
	}
	if len(latencies) > 0 {
		if err := r.store.SaveLatencyCounts(today, latencies); err != nil {
			return err
		}
	}
	for _, e := range zero {
		if err := r.store.AddZeroResultQuery(e.Query, e.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// Close stops auto-flush, flushes once more and closes the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.done

	if err := r.Flush(); err != nil {
		if r.store != nil {
			_ = r.store.Close()
		}
		return err
	}
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
