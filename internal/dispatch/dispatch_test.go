package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hypersearch/internal/agent"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/retrieval"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// recordingPool wraps a real pool and keeps the submitted tasks.
type recordingPool struct {
	*agent.Pool
	mu    sync.Mutex
	tasks []agent.Task
}

func (r *recordingPool) Submit(ctx context.Context, task agent.Task) *agent.Future {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	return r.Pool.Submit(ctx, task)
}

type fakeRetriever struct {
	mu    sync.Mutex
	reqs  []retrieval.Request
	delay time.Duration
	err   error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req retrieval.Request) ([]search.Candidate, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, errors.RetrievalUnavailable(ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []search.Candidate{{SourceID: f.SourceID(), Title: "vec", Score: 0.7}}, nil
}

func (f *fakeRetriever) SourceID() string { return "retrieval:fake" }

func echo(m query.Modality) agent.Capability {
	return agent.CapabilityFunc{Label: string(m), Fn: func(_ context.Context, t agent.Task) ([]search.Candidate, error) {
		return []search.Candidate{{SourceID: search.AgentSource(m), Title: t.Text, Score: 0.9, Modality: m}}, nil
	}}
}

func newPool(t *testing.T) *recordingPool {
	t.Helper()
	caps := agent.Capabilities{}
	for _, m := range query.AllModalities() {
		var err error
		caps, err = caps.Set(m, echo(m))
		require.NoError(t, err)
	}
	p, err := agent.NewPool(caps, agent.Config{Size: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return &recordingPool{Pool: p}
}

func newQuery(text string, typ query.SearchType, modalities ...query.Modality) *query.Query {
	return &query.Query{
		ID:          "q-1",
		Text:        text,
		Modalities:  modalities,
		Type:        typ,
		Filters:     map[string]string{"lang": "en"},
		SubmittedAt: time.Now(),
		Analysis:    query.Analysis{Expansions: []string{"qubit"}},
	}
}

func TestDispatch_QuickTextIssuesOneTaskAndRetrieval(t *testing.T) {
	// Given: a quick text query
	pool := newPool(t)
	ret := &fakeRetriever{}
	d := New(pool, ret, Config{TopK: 20, SimilarityThreshold: 0.5, CandidatesPerAgent: 7})
	q := newQuery("quantum computing", query.TypeQuick, query.ModalityText)

	// When: dispatching
	flight := d.Dispatch(context.Background(), q)

	// Then: one task with the quick deadline, plus one retrieval call
	require.Len(t, flight.Agents, 1)
	require.NotNil(t, flight.Retrieval)
	assert.Equal(t, 2, flight.Sources())

	task := flight.Agents[0].Task()
	assert.Equal(t, q.SubmittedAt.Add(time.Second), task.Deadline)
	assert.Equal(t, query.TypeQuick, task.CapabilityHint)
	assert.Equal(t, []string{"qubit"}, task.Expansions)
	assert.Equal(t, 7, task.Limit)

	res := flight.Retrieval.Await(context.Background())
	require.NoError(t, res.Err)
	assert.Len(t, res.Candidates, 1)
	assert.Equal(t, retrieval.Request{
		Text:       "quantum computing",
		TopK:       20,
		Filters:    q.Filters,
		Modalities: []string{"text"},
		MinScore:   0.5,
	}, ret.reqs[0])
}

func TestDispatch_QuickWithoutTextSkipsRetrieval(t *testing.T) {
	pool := newPool(t)
	ret := &fakeRetriever{}
	d := New(pool, ret, Config{})

	flight := d.Dispatch(context.Background(), newQuery("sunset", query.TypeQuick, query.ModalityImage))

	assert.Nil(t, flight.Retrieval)
	assert.Len(t, flight.Agents, 1)
}

func TestDispatch_DeadlinesByType(t *testing.T) {
	d := New(newPool(t), nil, Config{Deadlines: map[query.SearchType]time.Duration{query.TypeDetailed: 6 * time.Second}})

	tests := []struct {
		typ  query.SearchType
		want time.Duration
	}{
		{query.TypeQuick, time.Second},
		{query.TypeComprehensive, 3 * time.Second},
		{query.TypeDetailed, 6 * time.Second},
		{query.TypeCreative, 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, d.Deadline(tt.typ))
		})
	}
}

func TestDispatch_MultimodalKeepsCanonicalOrder(t *testing.T) {
	pool := newPool(t)
	d := New(pool, &fakeRetriever{}, Config{})
	q := newQuery("q", query.TypeComprehensive, query.ModalityText, query.ModalityImage, query.ModalityCode)

	flight := d.Dispatch(context.Background(), q)

	require.Len(t, flight.Agents, 3)
	for i, m := range []query.Modality{query.ModalityText, query.ModalityImage, query.ModalityCode} {
		assert.Equal(t, m, flight.Agents[i].Task().Modality)
		out := flight.Agents[i].Await(context.Background())
		require.NoError(t, out.Err)
	}
	assert.NotNil(t, flight.Retrieval)
}

func TestDispatch_CreativeRelaxesSimilarity(t *testing.T) {
	d := New(newPool(t), nil, Config{SimilarityThreshold: 0.5})

	req := d.RetrievalRequest(newQuery("q", query.TypeCreative, query.ModalityText))

	assert.Zero(t, req.MinScore)
	assert.Equal(t, retrieval.DefaultTopK, req.TopK)
}

func TestDispatch_DoesNotWait(t *testing.T) {
	// Given: a retriever that takes a while
	ret := &fakeRetriever{delay: 200 * time.Millisecond}
	d := New(newPool(t), ret, Config{})

	// When: dispatching
	start := time.Now()
	flight := d.Dispatch(context.Background(), newQuery("q", query.TypeComprehensive, query.ModalityText))

	// Then: Dispatch returns before the retrieval finishes
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	<-flight.Retrieval.Done()
}

func TestRetrievalCall_AbandonedReportsUnavailable(t *testing.T) {
	ret := &fakeRetriever{delay: time.Second}
	d := New(newPool(t), ret, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	flight := d.Dispatch(ctx, newQuery("q", query.TypeComprehensive, query.ModalityText))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	res := flight.Retrieval.Await(waitCtx)
	cancel()

	assert.ErrorIs(t, res.Err, errors.ErrRetrievalUnavailable)
	assert.Equal(t, "retrieval:fake", res.SourceID)
	<-flight.Retrieval.Done()
}

func TestRetrievalCall_PropagatesError(t *testing.T) {
	ret := &fakeRetriever{err: errors.RetrievalUnavailable(fmt.Errorf("down"))}
	d := New(newPool(t), ret, Config{})

	res := d.Dispatch(context.Background(), newQuery("q", query.TypeQuick, query.ModalityText)).Retrieval.Await(context.Background())

	assert.ErrorIs(t, res.Err, errors.ErrRetrievalUnavailable)
}
