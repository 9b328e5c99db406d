// Package retrieval implements the vector retrieval client: embed the query
// text, search a vector index, and map the hits to candidates.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aman-CERP/hypersearch/internal/embed"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
	"github.com/Aman-CERP/hypersearch/internal/store"
)

// Defaults.
const (
	DefaultTopK     = 20
	DefaultTimeout  = 2 * time.Second
	DefaultMinScore = 0.5
)

var tracer = otel.Tracer("hypersearch/retrieval")

// Request is one similarity query.
type Request struct {
	Text    string
	TopK    int
	Filters map[string]string

	// Modalities restricts hits to documents of these modalities. Empty
	// admits every modality.
	Modalities []string
	MinScore   float64
}

// Config configures a Client.
type Config struct {
	Timeout         time.Duration
	BreakerFailures int
	BreakerReset    time.Duration
}

// Client queries a vector index with embedded query text. It applies its own
// timeout and fails fast through a circuit breaker while the backend is down.
// Every failure surfaces as RetrievalUnavailable.
type Client struct {
	embedder embed.Embedder
	index    store.VectorIndex
	breaker  *errors.CircuitBreaker
	timeout  time.Duration
	source   string
}

// NewClient creates a retrieval client. A nil index yields a client whose
// every call reports RetrievalUnavailable.
func NewClient(embedder embed.Embedder, index store.VectorIndex, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	backend := store.BackendNone
	if index != nil {
		backend = index.Name()
	}

	opts := []errors.CircuitBreakerOption{
		errors.WithStateChange(func(name string, from, to errors.State) {
			slog.Warn("retrieval_circuit_state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}),
	}
	if cfg.BreakerFailures > 0 {
		opts = append(opts, errors.WithMaxFailures(cfg.BreakerFailures))
	}
	if cfg.BreakerReset > 0 {
		opts = append(opts, errors.WithResetTimeout(cfg.BreakerReset))
	}

	return &Client{
		embedder: embedder,
		index:    index,
		breaker:  errors.NewCircuitBreaker("retrieval:"+backend, opts...),
		timeout:  cfg.Timeout,
		source:   search.RetrievalSource(backend),
	}
}

// SourceID identifies this client's candidates.
func (c *Client) SourceID() string {
	return c.source
}

// Enabled reports whether a vector index is configured.
func (c *Client) Enabled() bool {
	return c.index != nil && c.embedder != nil
}

// Breaker exposes the circuit breaker state for health reporting.
func (c *Client) Breaker() *errors.CircuitBreaker {
	return c.breaker
}

// Retrieve embeds req.Text and returns up to TopK candidates scoring at least
// MinScore, best first.
func (c *Client) Retrieve(ctx context.Context, req Request) ([]search.Candidate, error) {
	ctx, span := tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("retrieval.source", c.source),
		attribute.Int("retrieval.top_k", req.TopK),
		attribute.Float64("retrieval.min_score", req.MinScore),
	))
	defer span.End()

	candidates, err := c.retrieve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval unavailable")
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.candidates", len(candidates)))
	return candidates, nil
}

func (c *Client) retrieve(ctx context.Context, req Request) ([]search.Candidate, error) {
	if !c.Enabled() {
		return nil, errors.RetrievalUnavailable(fmt.Errorf("no vector index configured"))
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hits, err := errors.CircuitExecute(ctx, c.breaker, func(ctx context.Context) ([]store.VectorHit, error) {
		vec, err := c.embedder.Embed(ctx, req.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		return c.index.Search(ctx, vec, req.TopK, store.VectorFilter{
			Metadata:   req.Filters,
			Modalities: req.Modalities,
		})
	})
	if err != nil {
		return nil, errors.RetrievalUnavailable(err).WithDetail("source", c.source)
	}

	out := make([]search.Candidate, 0, len(hits))
	for _, h := range hits {
		score := float64(h.Score)
		if score < req.MinScore {
			continue
		}
		out = append(out, toCandidate(c.source, h.Document, score))
	}
	return out, nil
}

func toCandidate(source string, doc store.Document, score float64) search.Candidate {
	meta := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["id"] = doc.ID
	modality := query.Modality(doc.Modality)
	if !modality.Valid() {
		modality = query.ModalityText
	}
	return search.Candidate{
		SourceID: source,
		Title:    doc.Title,
		Content:  doc.Content,
		Score:    score,
		Modality: modality,
		Metadata: meta,
	}
}

// Health checks the index and the embedder.
func (c *Client) Health(ctx context.Context) error {
	if !c.Enabled() {
		return errors.RetrievalUnavailable(fmt.Errorf("no vector index configured"))
	}
	if c.breaker.State() == errors.StateOpen {
		return errors.RetrievalUnavailable(errors.ErrCircuitOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.index.Health(ctx); err != nil {
		return errors.RetrievalUnavailable(err)
	}
	if !c.embedder.Available(ctx) {
		return errors.RetrievalUnavailable(fmt.Errorf("embedder %s unavailable", c.embedder.ModelName()))
	}
	return nil
}
