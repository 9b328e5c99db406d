package agent

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/errors"
)

// Future is the pending result of a submitted Task.
type Future struct {
	task Task

	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newFuture(task Task) *Future {
	return &Future{task: task, done: make(chan struct{})}
}

// Task returns the submitted task.
func (f *Future) Task() Task {
	return f.task
}

// resolve stores out if f is still pending. It reports whether out was stored.
func (f *Future) resolve(out Outcome) bool {
	stored := false
	f.once.Do(func() {
		f.outcome = out
		close(f.done)
		stored = true
	})
	return stored
}

// Done is closed once the task resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await waits for the outcome until the task deadline or ctx ends, whichever
// comes first. Either of the latter yields AgentTimeout; a result delivered
// afterwards is discarded.
func (f *Future) Await(ctx context.Context) Outcome {
	select {
	case <-f.done:
		return f.outcome
	default:
	}

	timer := time.NewTimer(time.Until(f.task.Deadline))
	defer timer.Stop()

	select {
	case <-f.done:
		return f.outcome
	case <-timer.C:
	case <-ctx.Done():
	}

	select {
	case <-f.done:
		return f.outcome
	default:
		return Outcome{Task: f.task, Err: errors.AgentTimeout(string(f.task.Modality))}
	}
}
