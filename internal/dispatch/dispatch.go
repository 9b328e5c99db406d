// Package dispatch turns a normalized query into agent tasks and a retrieval
// call, all started without waiting for any of them.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/agent"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/retrieval"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// DefaultDeadlines are the per-task budgets by search type.
var DefaultDeadlines = map[query.SearchType]time.Duration{
	query.TypeQuick:         1 * time.Second,
	query.TypeComprehensive: 3 * time.Second,
	query.TypeDetailed:      4 * time.Second,
	query.TypeCreative:      3 * time.Second,
}

// Submitter schedules agent tasks.
type Submitter interface {
	Submit(ctx context.Context, task agent.Task) *agent.Future
}

// Retriever performs similarity retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) ([]search.Candidate, error)
	SourceID() string
}

// Config configures a Dispatcher.
type Config struct {
	Deadlines map[query.SearchType]time.Duration

	// TopK and SimilarityThreshold shape the retrieval request.
	TopK                int
	SimilarityThreshold float64

	// CandidatesPerAgent caps each task's contribution.
	CandidatesPerAgent int
}

// Dispatcher fans a query out to the agent pool and the retrieval client.
type Dispatcher struct {
	pool      Submitter
	retriever Retriever
	cfg       Config
}

// New creates a Dispatcher. A nil retriever disables retrieval.
func New(pool Submitter, retriever Retriever, cfg Config) *Dispatcher {
	deadlines := make(map[query.SearchType]time.Duration, len(DefaultDeadlines))
	for t, d := range DefaultDeadlines {
		deadlines[t] = d
	}
	for t, d := range cfg.Deadlines {
		if d > 0 {
			deadlines[t] = d
		}
	}
	cfg.Deadlines = deadlines
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	return &Dispatcher{pool: pool, retriever: retriever, cfg: cfg}
}

// Deadline returns the per-task budget for t.
func (d *Dispatcher) Deadline(t query.SearchType) time.Duration {
	if budget, ok := d.cfg.Deadlines[t]; ok {
		return budget
	}
	return d.cfg.Deadlines[query.TypeComprehensive]
}

// WantsRetrieval reports whether q gets a retrieval call: always, unless the
// search is quick and text was not requested.
func WantsRetrieval(q *query.Query) bool {
	return q.HasModality(query.ModalityText) || q.Type != query.TypeQuick
}

// RetrievalRequest builds the retrieval request for q, restricted to the
// requested modalities. Creative searches accept any similarity.
func (d *Dispatcher) RetrievalRequest(q *query.Query) retrieval.Request {
	minScore := d.cfg.SimilarityThreshold
	if q.Type == query.TypeCreative {
		minScore = 0
	}
	modalities := make([]string, len(q.Modalities))
	for i, m := range q.Modalities {
		modalities[i] = string(m)
	}
	return retrieval.Request{
		Text:       q.Text,
		TopK:       d.cfg.TopK,
		Filters:    q.Filters,
		Modalities: modalities,
		MinScore:   minScore,
	}
}

// Dispatch submits one task per requested modality, in canonical order, and
// starts the retrieval call when the query wants one. It returns at once.
func (d *Dispatcher) Dispatch(ctx context.Context, q *query.Query) *Flight {
	deadline := q.SubmittedAt.Add(d.Deadline(q.Type))
	flight := &Flight{QueryID: q.ID, Deadline: deadline}

	for _, m := range q.Modalities {
		task := agent.Task{
			QueryID:        q.ID,
			Modality:       m,
			Deadline:       deadline,
			CapabilityHint: q.Type,
			Text:           q.Text,
			Expansions:     q.Analysis.Expansions,
			Filters:        q.Filters,
			Limit:          d.cfg.CandidatesPerAgent,
		}
		flight.Agents = append(flight.Agents, d.pool.Submit(ctx, task))
	}

	if d.retriever != nil && WantsRetrieval(q) {
		flight.Retrieval = startRetrieval(ctx, d.retriever, d.RetrievalRequest(q))
	}

	slog.Debug("query_dispatched",
		slog.String("query_id", q.ID),
		slog.Int("tasks", len(flight.Agents)),
		slog.Bool("retrieval", flight.Retrieval != nil),
		slog.Time("deadline", deadline))
	return flight
}
