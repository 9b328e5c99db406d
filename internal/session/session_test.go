package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hypersearch/internal/errors"
)

func entry(principal, q string, at time.Time) Entry {
	return Entry{Principal: principal, Query: q, Type: "quick", ResultCount: 3, Timestamp: at}
}

func TestStore_ListNewestFirst(t *testing.T) {
	// Given: three searches by alice
	s, err := NewStore(context.Background(), Config{})
	require.NoError(t, err)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, q := range []string{"one", "two", "three"} {
		require.NoError(t, s.Append(context.Background(), entry("alice", q, base.Add(time.Duration(i)*time.Second))))
	}

	// When: listing alice's history
	got := s.List("alice")

	// Then: newest first
	require.Len(t, got, 3)
	assert.Equal(t, "three", got[0].Query)
	assert.Equal(t, "one", got[2].Query)
}

func TestStore_EvictsFIFOPastCapacity(t *testing.T) {
	// Given: the default capacity of 10
	s, err := NewStore(context.Background(), Config{})
	require.NoError(t, err)

	// When: appending 12 entries
	for i := 0; i < 12; i++ {
		require.NoError(t, s.Append(context.Background(), entry("bob", fmt.Sprintf("q%d", i), time.Time{})))
	}

	// Then: only the 10 newest remain
	got := s.List("bob")
	require.Len(t, got, 10)
	assert.Equal(t, "q11", got[0].Query)
	assert.Equal(t, "q2", got[9].Query)
}

func TestStore_PrincipalsAreIsolated(t *testing.T) {
	s, err := NewStore(context.Background(), Config{Capacity: 2, Shards: 1})
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), entry("a", "x", time.Time{})))
	require.NoError(t, s.Append(context.Background(), entry("b", "y", time.Time{})))

	assert.Len(t, s.List("a"), 1)
	assert.Len(t, s.List("b"), 1)
	assert.Empty(t, s.List("nobody"))
	assert.NotNil(t, s.List("nobody"))
	assert.Equal(t, 2, s.Principals())
}

func TestStore_AppendStampsTimestamp(t *testing.T) {
	s, err := NewStore(context.Background(), Config{})
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), Entry{Principal: "a", Query: "x"}))

	assert.False(t, s.List("a")[0].Timestamp.IsZero())
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	s, err := NewStore(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Append(context.Background(), entry("a", "x", time.Time{}))

	assert.ErrorIs(t, err, errors.ErrSessionUnavailable)
	assert.False(t, s.Healthy())
	assert.NoError(t, s.Close())
}

type failingPersister struct{}

func (failingPersister) Save(context.Context, Entry, int) error { return fmt.Errorf("disk full") }
func (failingPersister) Load(context.Context, int) ([]Entry, error) {
	return nil, nil
}
func (failingPersister) Close() error { return nil }

func TestStore_PersistFailureKeepsEntryInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), Config{}, WithPersister(failingPersister{}))
	require.NoError(t, err)

	err = s.Append(context.Background(), entry("a", "x", time.Time{}))

	assert.ErrorIs(t, err, errors.ErrSessionUnavailable)
	assert.Len(t, s.List("a"), 1)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s, err := NewStore(context.Background(), Config{Capacity: 5, Shards: 4})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(p, i int) {
				defer wg.Done()
				_ = s.Append(context.Background(), entry(fmt.Sprintf("p%d", p), fmt.Sprintf("q%d", i), time.Time{}))
				_ = s.List(fmt.Sprintf("p%d", p))
			}(p, i)
		}
	}
	wg.Wait()

	for p := 0; p < 8; p++ {
		assert.Len(t, s.List(fmt.Sprintf("p%d", p)), 5)
	}
}
