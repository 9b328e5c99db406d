// Package cache holds fused results keyed by query fingerprint.
//
// The cache is sharded by fingerprint; each shard is an expirable LRU with its
// own lock. Entries expire by TTL only and Put always overwrites.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/atomic"

	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// Defaults for a Cache built with zero values.
const (
	DefaultCapacity = 1024
	DefaultShards   = 16
	DefaultTTL      = time.Hour
)

// Entry is a cached fused result.
type Entry struct {
	Fingerprint string
	Result      *search.FusedResult
	ExpiresAt   time.Time
}

// Config configures a Cache.
type Config struct {
	Enabled  bool
	Capacity int
	Shards   int
	TTL      time.Duration
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache is a sharded, TTL-bound response cache.
type Cache struct {
	shards []*expirable.LRU[string, Entry]
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	enabled bool
	closed  bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache. Capacity is spread evenly across shards.
func New(cfg Config) *Cache {
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	perShard := cfg.Capacity / cfg.Shards
	if perShard < 1 {
		perShard = 1
	}

	c := &Cache{
		shards:  make([]*expirable.LRU[string, Entry], cfg.Shards),
		ttl:     cfg.TTL,
		now:     time.Now,
		enabled: cfg.Enabled,
	}
	for i := range c.shards {
		c.shards[i] = expirable.NewLRU[string, Entry](perShard, nil, cfg.TTL)
	}
	return c
}

func (c *Cache) shard(fp string) *expirable.LRU[string, Entry] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// available must be called with c.mu held.
func (c *Cache) available() error {
	if c.closed {
		return errors.CacheUnavailable(nil).WithDetail("reason", "closed")
	}
	if !c.enabled {
		return errors.CacheUnavailable(nil).WithDetail("reason", "disabled")
	}
	return nil
}

// Get returns the cached result for fp. A miss is (nil, false, nil); an
// unusable cache returns CacheUnavailable.
func (c *Cache) Get(fp string) (*search.FusedResult, bool, error) {
	c.mu.RLock()
	if err := c.available(); err != nil {
		c.mu.RUnlock()
		return nil, false, err
	}
	c.mu.RUnlock()

	entry, ok := c.shard(fp).Get(fp)

	if !ok {
		c.misses.Inc()
		return nil, false, nil
	}
	c.hits.Inc()
	return entry.Result, true, nil
}

// Put stores result under fp, replacing any previous entry.
func (c *Cache) Put(fp string, result *search.FusedResult) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.available(); err != nil {
		return err
	}

	c.shard(fp).Add(fp, Entry{
		Fingerprint: fp,
		Result:      result,
		ExpiresAt:   c.now().Add(c.ttl),
	})
	return nil
}

// Purge drops every entry.
func (c *Cache) Purge() {
	for _, s := range c.shards {
		s.Purge()
	}
}

// Stats returns hit and miss counts and the current entry count.
func (c *Cache) Stats() Stats {
	st := Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}

	for _, s := range c.shards {
		st.Entries += s.Len()
	}
	return st
}

// Healthy reports whether the cache can serve requests.
func (c *Cache) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available() == nil
}

// Close purges the cache. Later calls return CacheUnavailable.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Purge()
	return nil
}

// Fingerprint derives the cache key for q. Two queries share a key only if
// they agree on text, modalities, type, principal and filters.
func Fingerprint(q *query.Query) string {
	mods := make([]string, len(q.Modalities))
	for i, m := range q.Modalities {
		mods[i] = string(m)
	}
	sort.Strings(mods)

	keys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(strings.ToLower(q.Text))
	sb.WriteByte(0)
	sb.WriteString(strings.Join(mods, ","))
	sb.WriteByte(0)
	sb.WriteString(string(q.Type))
	sb.WriteByte(0)
	sb.WriteString(q.Principal)
	for _, k := range keys {
		sb.WriteByte(0)
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(q.Filters[k])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
