package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// Pool defaults.
const (
	DefaultPoolSize  = 8
	DefaultMaxQueued = 256

	releaseTimeout = 5 * time.Second
)

var tracer = otel.Tracer("hypersearch/agent")

// Config configures a Pool.
type Config struct {
	// Size is the number of concurrent workers.
	Size int

	// MaxQueued bounds tasks waiting for a worker. Submissions beyond it
	// resolve immediately as AgentFailure.
	MaxQueued int
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOutcomeHook registers fn to observe every resolved task.
func WithOutcomeHook(fn func(Outcome)) Option {
	return func(p *Pool) {
		p.onOutcome = fn
	}
}

// WithClock overrides the clock used for deadline checks (tests).
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// Pool runs tasks on a bounded set of workers.
type Pool struct {
	workers   *ants.Pool
	caps      Capabilities
	stats     *Stats
	logger    *slog.Logger
	onOutcome func(Outcome)
	now       func() time.Time

	mu         sync.RWMutex
	submitters sync.WaitGroup
	closed     atomic.Bool
}

// NewPool creates a pool dispatching tasks to caps.
func NewPool(caps Capabilities, cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultPoolSize
	}
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = DefaultMaxQueued
	}

	p := &Pool{
		caps:   caps,
		stats:  newStats(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	workers, err := ants.NewPool(cfg.Size,
		ants.WithMaxBlockingTasks(cfg.MaxQueued),
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("agent_worker_panic", slog.Any("panic", v))
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to create agent pool: %w", err)
	}
	p.workers = workers
	return p, nil
}

// Submit schedules task and returns immediately. The returned Future always
// resolves: with the capability's candidates, or with an error outcome.
func (p *Pool) Submit(ctx context.Context, task Task) *Future {
	f := newFuture(task)
	cs := p.stats.get(task.Modality)
	cs.submitted.Inc()

	capability, err := p.caps.For(task.Modality)
	if err != nil {
		p.finish(f, cs, Outcome{Task: task, Err: err})
		return f
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		p.finish(f, cs, Outcome{Task: task, Err: errors.AgentFailure(string(task.Modality), ants.ErrPoolClosed)})
		return f
	}

	p.submitters.Add(1)
	go func() {
		defer p.submitters.Done()
		// Blocks while all workers are busy and the wait queue has room.
		err := p.workers.Submit(func() {
			p.run(ctx, f, cs, capability)
		})
		if err != nil {
			p.finish(f, cs, Outcome{Task: task, Err: errors.AgentFailure(string(task.Modality), err)})
		}
	}()
	return f
}

// run executes one task on a worker.
func (p *Pool) run(ctx context.Context, f *Future, cs *capabilityStats, capability Capability) {
	task := f.task
	start := p.now()
	// The query may have been abandoned while the task waited for a worker.
	if !start.Before(task.Deadline) || ctx.Err() != nil {
		p.finish(f, cs, Outcome{Task: task, Err: errors.AgentTimeout(string(task.Modality))})
		return
	}

	ctx, cancel := context.WithDeadline(ctx, task.Deadline)
	defer cancel()
	ctx, span := tracer.Start(ctx, "agent.task", trace.WithAttributes(
		attribute.String("agent.modality", string(task.Modality)),
		attribute.String("agent.capability", capability.Name()),
		attribute.String("query.id", task.QueryID),
		attribute.String("query.type", string(task.CapabilityHint)),
	))
	defer span.End()

	candidates, err := p.invoke(ctx, capability, task)
	latency := p.now().Sub(start)

	switch {
	case err == nil && p.now().After(task.Deadline):
		// Finished, but too late to count.
		err = errors.AgentTimeout(string(task.Modality))
		candidates = nil
	case err != nil && ctx.Err() != nil:
		err = errors.AgentTimeout(string(task.Modality))
	case err != nil && errors.GetCode(err) != errors.ErrCodeAgentFailure:
		err = errors.AgentFailure(string(task.Modality), err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Label(err))
		candidates = nil
	} else {
		span.SetAttributes(attribute.Int("agent.candidates", len(candidates)))
	}

	p.finish(f, cs, Outcome{Task: task, Candidates: candidates, Err: err, Latency: latency})
}

// invoke runs the capability, converting a panic into an error.
func (p *Pool) invoke(ctx context.Context, capability Capability, task Task) (candidates []search.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("agent_capability_panic",
				slog.String("capability", capability.Name()),
				slog.String("query_id", task.QueryID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			candidates = nil
			err = errors.AgentFailure(string(task.Modality), fmt.Errorf("capability panicked: %v", r))
		}
	}()
	return capability.Run(ctx, task)
}

// finish resolves f and records the outcome once.
func (p *Pool) finish(f *Future, cs *capabilityStats, out Outcome) {
	if !f.resolve(out) {
		return
	}
	cs.record(out.Err, out.Latency, p.now())
	if out.Err != nil {
		p.logger.Debug("agent_task_failed",
			slog.String("query_id", out.Task.QueryID),
			slog.String("modality", string(out.Task.Modality)),
			slog.String("outcome", Label(out.Err)),
			slog.String("error", out.Err.Error()))
	}
	if p.onOutcome != nil {
		p.onOutcome(out)
	}
}

// Stats returns per-modality statistics.
func (p *Pool) Stats() []StatsSnapshot {
	return p.stats.Snapshot(p.caps)
}

// Capabilities returns the registered capabilities.
func (p *Pool) Capabilities() Capabilities {
	return p.caps
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.workers.Running()
}

// Waiting returns the number of tasks waiting for a worker.
func (p *Pool) Waiting() int {
	return p.workers.Waiting()
}

// Cap returns the worker count.
func (p *Pool) Cap() int {
	return p.workers.Cap()
}

// Healthy reports whether the pool accepts work.
func (p *Pool) Healthy() bool {
	return !p.closed.Load() && !p.workers.IsClosed()
}

// Close stops accepting tasks and waits for running tasks to finish.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.closed.CAS(false, true) {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	err := p.workers.ReleaseTimeout(releaseTimeout)
	p.submitters.Wait()
	if err != nil {
		return fmt.Errorf("failed to release agent pool: %w", err)
	}
	return nil
}
