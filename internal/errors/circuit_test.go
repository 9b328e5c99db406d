package errors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(context.Context) error { return errors.New("backend down") }
func succeeding(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	cb := NewCircuitBreaker("retrieval", WithMaxFailures(3), WithResetTimeout(time.Second))
	ctx := context.Background()

	// When: recording 3 failures
	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, failing)
	}

	// Then: circuit is open and calls are rejected without running
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	// Given: an open breaker on a controllable clock
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("retrieval", WithMaxFailures(1), WithResetTimeout(10*time.Second))
	cb.now = func() time.Time { return now }
	_ = cb.Execute(context.Background(), failing)
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	now = now.Add(11 * time.Second)

	// Then: the breaker is half-open and a successful trial call closes it
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), succeeding))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("retrieval", WithMaxFailures(2), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }
	_ = cb.Execute(context.Background(), failing)
	_ = cb.Execute(context.Background(), failing)
	now = now.Add(2 * time.Second)

	// When: the trial call fails
	_ = cb.Execute(context.Background(), failing)

	// Then: the breaker reopens immediately
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	cb := NewCircuitBreaker("qdrant",
		WithMaxFailures(1),
		WithStateChange(func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)

	_ = cb.Execute(context.Background(), failing)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"qdrant:closed->open"}, transitions)
}

func TestCircuitBreaker_CallerCancellationNotCounted(t *testing.T) {
	// Given: a cancelled caller context
	cb := NewCircuitBreaker("retrieval", WithMaxFailures(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: the call returns the context error
	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })

	// Then: the breaker stays closed
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitExecute_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("embed")

	got, err := CircuitExecute(context.Background(), cb, func(context.Context) ([]float32, error) {
		return []float32{1, 2}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
