package dispatch

import (
	"context"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/agent"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/retrieval"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// Flight is the set of in-progress work for one query, in dispatch order:
// agent tasks first, then retrieval.
type Flight struct {
	QueryID   string
	Deadline  time.Time
	Agents    []*agent.Future
	Retrieval *RetrievalCall
}

// Sources returns the number of sources the flight will report.
func (f *Flight) Sources() int {
	n := len(f.Agents)
	if f.Retrieval != nil {
		n++
	}
	return n
}

// RetrievalCall is a retrieval request running on its own goroutine.
type RetrievalCall struct {
	Request  retrieval.Request
	SourceID string

	done       chan struct{}
	candidates []search.Candidate
	err        error
	latency    time.Duration
}

func startRetrieval(ctx context.Context, r Retriever, req retrieval.Request) *RetrievalCall {
	call := &RetrievalCall{Request: req, SourceID: r.SourceID(), done: make(chan struct{})}
	go func() {
		defer close(call.done)
		start := time.Now()
		call.candidates, call.err = r.Retrieve(ctx, req)
		call.latency = time.Since(start)
	}()
	return call
}

// Done is closed once the call returns.
func (c *RetrievalCall) Done() <-chan struct{} {
	return c.done
}

// Await waits for the call or ctx. An abandoned call reports
// RetrievalUnavailable; its late result is discarded.
func (c *RetrievalCall) Await(ctx context.Context) search.SourceResult {
	select {
	case <-c.done:
		return search.SourceResult{SourceID: c.SourceID, Candidates: c.candidates, Err: c.err, Latency: c.latency}
	case <-ctx.Done():
		return search.SourceResult{SourceID: c.SourceID, Err: errors.RetrievalUnavailable(ctx.Err())}
	}
}
