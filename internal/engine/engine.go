// Package engine orchestrates one search: normalize, consult the response
// cache, dispatch to agents and retrieval, join under the overall deadline,
// fuse, then record the search in the cache, the session store and telemetry.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Aman-CERP/hypersearch/internal/cache"
	"github.com/Aman-CERP/hypersearch/internal/dispatch"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/metrics"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
	"github.com/Aman-CERP/hypersearch/internal/session"
	"github.com/Aman-CERP/hypersearch/internal/telemetry"
)

// DefaultOverallTimeout bounds the join of every source for one query.
const DefaultOverallTimeout = 5 * time.Second

// DefaultMinScore drops weak candidates before fusion.
const DefaultMinScore = 0.2

var tracer = otel.Tracer("hypersearch/engine")

// ResultCache stores fused results by fingerprint.
type ResultCache interface {
	Get(fp string) (*search.FusedResult, bool, error)
	Put(fp string, result *search.FusedResult) error
}

// SessionRecorder records completed searches per principal.
type SessionRecorder interface {
	Append(ctx context.Context, e session.Entry) error
}

// TelemetryRecorder receives one event per search.
type TelemetryRecorder interface {
	Record(e telemetry.SearchEvent)
}

// Config configures an Engine.
type Config struct {
	OverallTimeout time.Duration

	// MinScore applies to every type but creative, which uses CreativeMinScore.
	MinScore         float64
	CreativeMinScore float64
}

// Engine runs searches.
type Engine struct {
	normalizer *query.Normalizer
	dispatcher *dispatch.Dispatcher
	fuser      *search.Fuser
	cfg        Config

	cache     ResultCache
	sessions  SessionRecorder
	telemetry TelemetryRecorder
	metrics   *metrics.Metrics
	health    []HealthCheck
	logger    *slog.Logger

	group singleflight.Group
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache enables the response cache.
func WithCache(c ResultCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithSessions records every search in the session store.
func WithSessions(s SessionRecorder) Option {
	return func(e *Engine) {
		e.sessions = s
	}
}

// WithTelemetry sets the telemetry recorder.
func WithTelemetry(t TelemetryRecorder) Option {
	return func(e *Engine) {
		e.telemetry = t
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithHealthChecks adds components reported by Health.
func WithHealthChecks(checks ...HealthCheck) Option {
	return func(e *Engine) {
		e.health = append(e.health, checks...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock overrides the time source used for processing time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine. The normalizer, dispatcher and fuser are required.
func New(n *query.Normalizer, d *dispatch.Dispatcher, f *search.Fuser, cfg Config, opts ...Option) (*Engine, error) {
	if n == nil || d == nil || f == nil {
		return nil, fmt.Errorf("engine: normalizer, dispatcher and fuser are required")
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = DefaultOverallTimeout
	}
	if cfg.MinScore < 0 {
		cfg.MinScore = 0
	}
	if cfg.CreativeMinScore < 0 {
		cfg.CreativeMinScore = 0
	}

	e := &Engine{
		normalizer: n,
		dispatcher: d,
		fuser:      f,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// MinScoreFor returns the fusion threshold for a search type.
func (e *Engine) MinScoreFor(t query.SearchType) float64 {
	if t == query.TypeCreative {
		return e.cfg.CreativeMinScore
	}
	return e.cfg.MinScore
}

// Search runs req end to end. Only request validation errors and the
// simultaneous loss of cache, session store and every source are returned
// as errors; everything else degrades the result.
func (e *Engine) Search(ctx context.Context, req query.Request) (*Result, error) {
	start := e.now()
	ctx, span := tracer.Start(ctx, "engine.Search")
	defer span.End()

	q, err := e.normalizer.Normalize(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		e.observe(string(req.Type), metrics.OutcomeInvalid, e.now().Sub(start))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("query.id", q.ID),
		attribute.String("query.type", string(q.Type)),
		attribute.StringSlice("query.modalities", modalityStrings(q.Modalities)),
	)

	res := &Result{Query: q}
	fp := cache.Fingerprint(q)
	cacheOK := e.cache != nil

	if e.cache != nil {
		fused, hit, err := e.cache.Get(fp)
		switch {
		case err != nil:
			cacheOK = false
			res.Degraded.Cache = errors.GetCode(err)
			e.countCache("bypass")
		case hit:
			e.countCache("hit")
			span.AddEvent("cache_hit")
			res.Fused = fused
			res.Cached = true
		default:
			e.countCache("miss")
		}
	}

	if !res.Cached {
		// The shared computation outlives a caller that gives up; other
		// callers and the cache still receive its result.
		ch := e.group.DoChan(fp, func() (any, error) {
			return e.compute(context.WithoutCancel(ctx), q, fp, cacheOK), nil
		})
		var out *outcome
		select {
		case r := <-ch:
			out = r.Val.(*outcome)
			if r.Shared {
				span.AddEvent("singleflight_shared")
			}
		case <-ctx.Done():
			err := fmt.Errorf("search %s abandoned: %w", q.ID, ctx.Err())
			span.RecordError(err)
			span.SetStatus(codes.Error, "abandoned")
			e.observe(string(q.Type), metrics.OutcomeFailed, e.now().Sub(start))
			return nil, err
		}
		res.Fused = out.fused
		if len(out.sources) > 0 {
			res.Degraded.Sources = out.sources
		}
		res.Degraded.AllSourcesFailed = out.allFailed
	}

	if e.sessions != nil {
		err := e.sessions.Append(ctx, session.Entry{
			Principal:   q.Principal,
			QueryID:     q.ID,
			Query:       q.Text,
			Type:        string(q.Type),
			Modalities:  modalityStrings(q.Modalities),
			ResultCount: len(res.Fused.Results),
			Timestamp:   q.SubmittedAt,
		})
		if err != nil {
			res.Degraded.Session = errors.GetCode(err)
		}
	}
	res.ProcessingTime = e.now().Sub(start)

	if res.Degraded.AllSourcesFailed && res.Degraded.Cache != "" && res.Degraded.Session != "" {
		err := errors.New(errors.ErrCodeServiceUnavailable, "cache, session store and all sources are unavailable", errors.AllSourcesFailed())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unavailable")
		e.observe(string(q.Type), metrics.OutcomeFailed, res.ProcessingTime)
		e.logger.Error("search_unavailable",
			slog.String("query_id", q.ID),
			slog.String("cache", res.Degraded.Cache),
			slog.String("session", res.Degraded.Session))
		return nil, err
	}

	e.record(q, res)
	return res, nil
}

// compute dispatches q, joins every source and fuses. It runs once per
// fingerprint at a time; ctx carries no caller cancellation.
func (e *Engine) compute(ctx context.Context, q *query.Query, fp string, cacheOK bool) *outcome {
	start := e.now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "engine.compute", trace.WithAttributes(attribute.String("query.id", q.ID)))
	defer span.End()

	flight := e.dispatcher.Dispatch(ctx, q)
	sources := e.join(ctx, flight)

	out := &outcome{sources: make(map[string]string)}
	failed := 0
	for _, src := range sources {
		if src.Err == nil {
			continue
		}
		failed++
		out.sources[src.SourceID] = errors.GetCode(src.Err)
		e.logger.Warn("source_degraded",
			slog.String("query_id", q.ID),
			slog.String("source", src.SourceID),
			slog.String("error", src.Err.Error()))
	}
	out.allFailed = len(sources) > 0 && failed == len(sources)

	fused := e.fuser.Fuse(sources, search.FuseOptions{MinScore: e.MinScoreFor(q.Type)})
	fused.ProcessingTime = e.now().Sub(start)
	out.fused = fused

	span.SetAttributes(
		attribute.Int("sources", len(sources)),
		attribute.Int("sources.failed", failed),
		attribute.Int("results", len(fused.Results)),
	)

	if out.allFailed {
		span.SetStatus(codes.Error, "all sources failed")
		e.logger.Warn("all_sources_failed",
			slog.String("query_id", q.ID),
			slog.String("error", errors.AllSourcesFailed().Error()))
		return out
	}
	if cacheOK {
		if err := e.cache.Put(fp, fused); err != nil {
			e.logger.Warn("cache_put_failed",
				slog.String("query_id", q.ID),
				slog.String("error", err.Error()))
		}
	}
	return out
}

// join waits for every source in flight. Each waiter returns at the earliest
// of its result, its task deadline and ctx; nothing waits past ctx.
func (e *Engine) join(ctx context.Context, flight *dispatch.Flight) []search.SourceResult {
	results := make([]search.SourceResult, flight.Sources())
	g, gctx := errgroup.WithContext(ctx)

	for i, f := range flight.Agents {
		g.Go(func() error {
			o := f.Await(gctx)
			results[i] = search.SourceResult{
				Rank:       i,
				SourceID:   search.AgentSource(o.Task.Modality),
				Candidates: o.Candidates,
				Err:        o.Err,
				Latency:    o.Latency,
			}
			return nil
		})
	}

	if call := flight.Retrieval; call != nil {
		rank := len(flight.Agents)
		g.Go(func() error {
			r := call.Await(gctx)
			r.Rank = rank
			results[rank] = r
			if e.metrics != nil {
				label := metrics.OutcomeSuccess
				if r.Err != nil {
					label = metrics.OutcomeFailed
				}
				e.metrics.ObserveRetrieval(label)
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (e *Engine) record(q *query.Query, res *Result) {
	label := metrics.OutcomeSuccess
	switch {
	case res.Cached:
		label = metrics.OutcomeCached
	case res.Degraded.Any():
		label = metrics.OutcomeDegraded
	}
	e.observe(string(q.Type), label, res.ProcessingTime)

	if e.telemetry != nil {
		e.telemetry.Record(telemetry.SearchEvent{
			Query:       q.Text,
			Type:        string(q.Type),
			Modalities:  modalityStrings(q.Modalities),
			ResultCount: len(res.Fused.Results),
			Latency:     res.ProcessingTime,
			CacheHit:    res.Cached,
			Degraded:    res.Degraded.Any(),
			Timestamp:   q.SubmittedAt,
		})
	}

	e.logger.Info("search_completed",
		slog.String("query_id", q.ID),
		slog.String("type", string(q.Type)),
		slog.Int("results", len(res.Fused.Results)),
		slog.Bool("cached", res.Cached),
		slog.Bool("degraded", res.Degraded.Any()),
		slog.Duration("latency", res.ProcessingTime))
}

func (e *Engine) observe(searchType, label string, d time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveSearch(searchType, label, d)
	}
}

func (e *Engine) countCache(result string) {
	if e.metrics == nil {
		return
	}
	switch result {
	case "hit":
		e.metrics.CacheHit()
	case "miss":
		e.metrics.CacheMiss()
	default:
		e.metrics.CacheBypass()
	}
}

func modalityStrings(ms []query.Modality) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}
