package agent

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// fakeModel answers every request with a canned reply.
type fakeModel struct {
	reply string
	err   error
	calls atomic.Int32
}

func (m *fakeModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// hangingModel never answers before its context ends.
type hangingModel struct {
	calls atomic.Int32
}

func (m *hangingModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *hangingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

const twoResults = "```json\n" + `{"results":[{"title":"Quantum overview","content":"Qubits hold superpositions.","score":0.8},{"title":"Too sure","content":"x","score":1.7}]}` + "\n```"

func llmTask(hint query.SearchType) Task {
	return Task{QueryID: "q", Modality: query.ModalityText, CapabilityHint: hint, Text: "quantum computing"}
}

func TestLLMCapability_SkipsQuickSearches(t *testing.T) {
	model := &fakeModel{reply: twoResults}
	c := NewLLMCapability(fixed(query.ModalityText, 0.9), model, query.ModalityText, LLMConfig{Model: "m"})

	got, err := c.Run(context.Background(), llmTask(query.TypeQuick))

	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(0), model.calls.Load())
}

func TestLLMCapability_AppendsModelCandidates(t *testing.T) {
	// Given: a model returning two results, one with an out-of-range score
	model := &fakeModel{reply: twoResults}
	c := NewLLMCapability(fixed(query.ModalityText, 0.9), model, query.ModalityText, LLMConfig{Model: "m", MaxCandidates: 3})

	// When: running a comprehensive task
	got, err := c.Run(context.Background(), llmTask(query.TypeComprehensive))

	// Then: inner results come first, model results are clamped and tagged
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "text 0", got[0].Title)
	assert.Equal(t, "Quantum overview", got[1].Title)
	assert.Equal(t, 1.0, got[2].Score)
	assert.Equal(t, "llm", got[1].Metadata["generator"])
	assert.Equal(t, search.AgentSource(query.ModalityText), got[1].SourceID)
	assert.Equal(t, "corpus-free+llm", NewLLMCapability(CapabilityFunc{Label: "corpus-free"}, model, query.ModalityText, LLMConfig{}).Name())
}

func TestLLMCapability_ModelFailureKeepsInnerResults(t *testing.T) {
	for name, model := range map[string]*fakeModel{
		"transport error": {err: fmt.Errorf("401 unauthorized")},
		"malformed json":  {reply: "not json"},
	} {
		t.Run(name, func(t *testing.T) {
			c := NewLLMCapability(fixed(query.ModalityText, 0.9, 0.4), model, query.ModalityText, LLMConfig{})

			got, err := c.Run(context.Background(), llmTask(query.TypeDetailed))

			require.NoError(t, err)
			assert.Len(t, got, 2)
		})
	}
}

func TestLLMCapability_HangingModelKeepsInnerResultsBeforeDeadline(t *testing.T) {
	// Given: a model that never answers and a task context with 200ms left
	model := &hangingModel{}
	c := NewLLMCapability(fixed(query.ModalityText, 0.9), model, query.ModalityText, LLMConfig{})
	deadline := time.Now().Add(200 * time.Millisecond)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	// When: running a comprehensive task
	got, err := c.Run(ctx, llmTask(query.TypeComprehensive))

	// Then: the corpus results come back before the task context expires
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].Score)
	assert.True(t, time.Now().Before(deadline))
	assert.NoError(t, ctx.Err())
	assert.Equal(t, int32(1), model.calls.Load())
}

func TestPool_HangingModelDoesNotTimeOutTheTask(t *testing.T) {
	// Given: a pool whose text capability consults a model that never answers
	model := &hangingModel{}
	text := NewLLMCapability(fixed(query.ModalityText, 0.9), model, query.ModalityText, LLMConfig{})
	p := newTestPool(t, Capabilities{Text: text}, 2)

	// When: a comprehensive task with a 200ms deadline runs
	task := taskFor(query.ModalityText, 200*time.Millisecond)
	task.CapabilityHint = query.TypeComprehensive
	out := p.Submit(context.Background(), task).Await(context.Background())

	// Then: the corpus candidate survives instead of the whole task timing out
	require.NoError(t, out.Err)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, 0.9, out.Candidates[0].Score)
}

func TestLLMCapability_InnerFailureFallsBackToModel(t *testing.T) {
	inner := CapabilityFunc{Label: "broken", Fn: func(context.Context, Task) ([]search.Candidate, error) {
		return nil, fmt.Errorf("index closed")
	}}
	c := NewLLMCapability(inner, &fakeModel{reply: twoResults}, query.ModalityText, LLMConfig{MaxCandidates: 1})

	got, err := c.Run(context.Background(), llmTask(query.TypeComprehensive))

	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLLMCapability_BothFail(t *testing.T) {
	inner := CapabilityFunc{Label: "broken", Fn: func(context.Context, Task) ([]search.Candidate, error) {
		return nil, fmt.Errorf("index closed")
	}}
	c := NewLLMCapability(inner, &fakeModel{err: fmt.Errorf("down")}, query.ModalityText, LLMConfig{})

	_, err := c.Run(context.Background(), llmTask(query.TypeComprehensive))

	assert.Error(t, err)
}

func TestNewLLMModel(t *testing.T) {
	model, err := NewLLMModel(LLMConfig{BaseURL: "http://127.0.0.1:1/v1", Model: "test-model"})

	require.NoError(t, err)
	assert.NotNil(t, model)
}
