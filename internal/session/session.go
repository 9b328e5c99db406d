// Package session keeps each principal's most recent searches.
//
// Entries live in fixed-capacity FIFO rings, one per principal, spread over
// lock-striped shards. A Persister optionally mirrors every append so history
// survives restarts.
package session

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/ring"
)

// Defaults for a Store built with zero values.
const (
	DefaultCapacity = 10
	DefaultShards   = 32
)

// Entry records one completed search.
type Entry struct {
	Principal   string    `json:"-"`
	QueryID     string    `json:"query_id"`
	Query       string    `json:"query"`
	Type        string    `json:"type"`
	Modalities  []string  `json:"modalities"`
	ResultCount int       `json:"result_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// Config configures a Store.
type Config struct {
	Capacity int
	Shards   int
}

type shard struct {
	mu    sync.RWMutex
	rings map[string]*ring.Buffer[Entry]
}

// Store is a sharded per-principal history.
type Store struct {
	shards    []*shard
	capacity  int
	persister Persister
	logger    *slog.Logger

	closeMu sync.RWMutex
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithPersister mirrors appends to p and replays p at construction.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store and replays any persisted entries into it.
func NewStore(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}

	s := &Store{
		shards:   make([]*shard, cfg.Shards),
		capacity: cfg.Capacity,
		logger:   slog.Default(),
	}
	for i := range s.shards {
		s.shards[i] = &shard{rings: make(map[string]*ring.Buffer[Entry])}
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.persister != nil {
		entries, err := s.persister.Load(ctx, s.capacity)
		if err != nil {
			return nil, errors.SessionUnavailable(err)
		}
		for _, e := range entries {
			s.push(e)
		}
		s.logger.Debug("session_history_replayed", slog.Int("entries", len(entries)))
	}
	return s, nil
}

func (s *Store) shardFor(principal string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principal))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) push(e Entry) {
	sh := s.shardFor(e.Principal)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	r, ok := sh.rings[e.Principal]
	if !ok {
		r = ring.New[Entry](s.capacity)
		sh.rings[e.Principal] = r
	}
	r.Push(e)
}

// Append records e, evicting the principal's oldest entry past capacity.
// The entry is kept in memory even when persistence fails; the failure is
// returned as SessionUnavailable.
func (s *Store) Append(ctx context.Context, e Entry) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return errors.SessionUnavailable(nil).WithDetail("reason", "closed")
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.push(e)

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(ctx, e, s.capacity); err != nil {
		s.logger.Warn("session_persist_failed",
			slog.String("principal", e.Principal),
			slog.String("error", err.Error()))
		return errors.SessionUnavailable(err)
	}
	return nil
}

// List returns up to capacity entries for principal, newest first.
func (s *Store) List(principal string) []Entry {
	sh := s.shardFor(principal)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	r, ok := sh.rings[principal]
	if !ok {
		return []Entry{}
	}
	return r.Newest(0)
}

// Capacity returns the per-principal entry limit.
func (s *Store) Capacity() int {
	return s.capacity
}

// Principals returns the number of principals with history.
func (s *Store) Principals() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.rings)
		sh.mu.RUnlock()
	}
	return n
}

// Healthy reports whether Append can succeed.
func (s *Store) Healthy() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	return !s.closed
}

// Close stops accepting appends and closes the persister.
func (s *Store) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.persister != nil {
		return s.persister.Close()
	}
	return nil
}
