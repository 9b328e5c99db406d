// Package agent runs per-modality search tasks on a bounded worker pool.
//
// Each task carries an absolute deadline. The pool never blocks the caller on
// submission; a task that is still queued when its deadline passes is resolved
// as a timeout and its capability never runs. Failures are confined to the
// task that produced them.
package agent

import (
	"context"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// Task is one unit of agent work: search one modality for one query.
type Task struct {
	QueryID  string
	Modality query.Modality
	Deadline time.Time

	// CapabilityHint is the search type; capabilities may adjust depth by it.
	CapabilityHint query.SearchType

	Text       string
	Expansions []string
	Filters    map[string]string
	Limit      int
}

// Remaining returns the time left before the task deadline.
func (t Task) Remaining(now time.Time) time.Duration {
	return t.Deadline.Sub(now)
}

// Outcome is the resolved result of a Task. Err is nil on success; otherwise
// Candidates is empty and Err carries AgentFailure, AgentTimeout or
// UnsupportedModality.
type Outcome struct {
	Task       Task
	Candidates []search.Candidate
	Err        error
	Latency    time.Duration
}

// Capability searches one modality. Implementations must honour ctx, which is
// bounded by the task deadline.
type Capability interface {
	Name() string
	Run(ctx context.Context, task Task) ([]search.Candidate, error)
}
