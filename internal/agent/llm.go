package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// LLMConfig configures the language-model capability.
type LLMConfig struct {
	BaseURL       string
	Model         string
	APIKey        string
	MaxCandidates int
	Temperature   float64
}

// NewLLMModel creates an OpenAI-compatible chat model client.
func NewLLMModel(cfg LLMConfig) (llms.Model, error) {
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return client, nil
}

const llmSystemPrompt = `You are a search assistant. Given a search query, answer with JSON only:
{"results":[{"title":"...","content":"...","score":0.0}]}
Return at most %d results. "content" is a short factual passage answering the query.
"score" is your confidence between 0 and 1. Return {"results":[]} if you have nothing useful.`

// llmBudget is the share of the remaining task time the model may use. The
// rest is left for returning the inner results before the task deadline.
const llmBudget = 0.75

type llmAnswer struct {
	Results []struct {
		Title   string  `json:"title"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// LLMCapability decorates a capability with model-generated candidates for
// comprehensive and detailed searches. Model failures are logged and never
// hide the inner capability's results.
type LLMCapability struct {
	inner         Capability
	model         llms.Model
	modelName     string
	modality      query.Modality
	maxCandidates int
	temperature   float64
	logger        *slog.Logger
}

var _ Capability = (*LLMCapability)(nil)

// NewLLMCapability wraps inner for modality m.
func NewLLMCapability(inner Capability, model llms.Model, m query.Modality, cfg LLMConfig) *LLMCapability {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 3
	}
	return &LLMCapability{
		inner:         inner,
		model:         model,
		modelName:     cfg.Model,
		modality:      m,
		maxCandidates: cfg.MaxCandidates,
		temperature:   cfg.Temperature,
		logger:        slog.Default().With("component", "llm-capability"),
	}
}

// Name implements Capability.
func (c *LLMCapability) Name() string {
	return c.inner.Name() + "+llm"
}

// Run implements Capability. The inner capability and the model run
// concurrently. The model gets a fraction of the remaining task time; when it
// has not answered by then the inner results are returned alone.
func (c *LLMCapability) Run(ctx context.Context, task Task) ([]search.Candidate, error) {
	if task.CapabilityHint != query.TypeComprehensive && task.CapabilityHint != query.TypeDetailed {
		return c.inner.Run(ctx, task)
	}

	type result struct {
		candidates []search.Candidate
		err        error
	}

	genCtx, cancel := modelContext(ctx)
	defer cancel()
	generated := make(chan result, 1)
	go func() {
		candidates, err := c.generate(genCtx, task)
		generated <- result{candidates, err}
	}()

	inner, innerErr := c.inner.Run(ctx, task)

	var r result
	select {
	case r = <-generated:
	case <-genCtx.Done():
		select {
		case r = <-generated:
		default:
			r.err = fmt.Errorf("model did not answer in time: %w", genCtx.Err())
		}
	}
	extra := r.candidates
	if r.err != nil {
		c.logger.Warn("llm_candidates_failed",
			slog.String("query_id", task.QueryID),
			slog.String("model", c.modelName),
			slog.String("error", r.err.Error()))
	}

	if innerErr != nil {
		if len(extra) > 0 {
			c.logger.Warn("inner_capability_failed",
				slog.String("capability", c.inner.Name()),
				slog.String("error", innerErr.Error()))
			return extra, nil
		}
		return nil, innerErr
	}
	return append(inner, extra...), nil
}

// modelContext derives the model's context from the task context, shortened
// to llmBudget of the time left when ctx carries a deadline.
func modelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	remaining := time.Until(deadline)
	return context.WithTimeout(ctx, time.Duration(float64(remaining)*llmBudget))
}

func (c *LLMCapability) generate(ctx context.Context, task Task) ([]search.Candidate, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(llmSystemPrompt, c.maxCandidates)),
		llms.TextParts(llms.ChatMessageTypeHuman, task.Text),
	}
	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(c.temperature),
		llms.WithJSONMode())
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var answer llmAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &answer); err != nil {
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}

	source := search.AgentSource(c.modality)
	out := make([]search.Candidate, 0, len(answer.Results))
	for _, r := range answer.Results {
		if len(out) == c.maxCandidates {
			break
		}
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Content) == "" {
			continue
		}
		score := r.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		out = append(out, search.Candidate{
			SourceID: source,
			Title:    r.Title,
			Content:  r.Content,
			Score:    score,
			Modality: c.modality,
			Metadata: map[string]string{"generator": "llm", "model": c.modelName},
		})
	}
	return out, nil
}
