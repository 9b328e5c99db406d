package errors

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is the normal state where requests are allowed.
	StateClosed State = iota
	// StateOpen is when the circuit is tripped and requests are blocked.
	StateOpen
	// StateHalfOpen is when the circuit is testing if the backend recovered.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast while a backend is known to be down.
// After maxFailures consecutive failures it opens; once resetTimeout has elapsed
// a single trial call is let through (half-open) and its outcome closes or re-opens it.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the number of failures before opening the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets the time to wait before attempting recovery.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetTimeout = d
		}
	}
}

// WithStateChange registers a callback invoked (outside the lock) on every transition.
func WithStateChange(fn func(name string, from, to State)) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given name.
// Default: 5 failures, 30 second reset timeout.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		state:        StateClosed,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState must be called with the lock held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// acquire decides whether a call may proceed and marks a half-open trial call as in flight.
func (cb *CircuitBreaker) acquire() (bool, State) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch st := cb.currentState(); st {
	case StateClosed:
		return true, st
	case StateHalfOpen:
		if cb.probing {
			return false, st
		}
		cb.probing = true
		return true, st
	default:
		return false, st
	}
}

// record stores the outcome of a call and returns the transition, if any.
func (cb *CircuitBreaker) record(err error) (State, State) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	from := cb.currentState()
	cb.probing = false

	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return from, cb.state
	}

	cb.failures++
	cb.lastFailure = cb.now()
	if from == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
	return from, cb.state
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
}

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen without calling fn if the circuit is open.
// A cancelled parent context is not counted as a backend failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := CircuitExecute(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CircuitExecute is the generic form of Execute for calls that return a value.
func CircuitExecute[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	ok, _ := cb.acquire()
	if !ok {
		return zero, ErrCircuitOpen
	}

	result, err := fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// Caller went away; release a trial slot without judging the backend.
		cb.mu.Lock()
		cb.probing = false
		cb.mu.Unlock()
		return zero, err
	}

	from, to := cb.record(err)
	cb.notify(from, to)
	if err != nil {
		return zero, err
	}
	return result, nil
}
