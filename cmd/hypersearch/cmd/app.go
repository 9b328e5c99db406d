package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/agent"
	"github.com/Aman-CERP/hypersearch/internal/cache"
	"github.com/Aman-CERP/hypersearch/internal/config"
	"github.com/Aman-CERP/hypersearch/internal/dispatch"
	"github.com/Aman-CERP/hypersearch/internal/embed"
	"github.com/Aman-CERP/hypersearch/internal/engine"
	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/metrics"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/retrieval"
	"github.com/Aman-CERP/hypersearch/internal/search"
	"github.com/Aman-CERP/hypersearch/internal/session"
	"github.com/Aman-CERP/hypersearch/internal/store"
	"github.com/Aman-CERP/hypersearch/internal/suggest"
	"github.com/Aman-CERP/hypersearch/internal/telemetry"
)

// Data directory layout.
const (
	corpusDirName    = "corpus.bleve"
	vectorsFileName  = "vectors.hnsw"
	telemetryDBName  = "telemetry.db"
	learnedQueryTopN = 50
)

// app owns every long-lived component built from a Config. Close releases
// them in reverse construction order.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics   *metrics.Metrics
	corpus    *store.CorpusIndex
	embedder  embed.Embedder
	vectors   store.VectorIndex
	retrieval *retrieval.Client
	pool      *agent.Pool
	cache     *cache.Cache
	sessions  *session.Store
	telemetry *telemetry.Recorder
	popular   *suggest.PopularIndex
	suggest   *suggest.Engine
	engine    *engine.Engine

	closers []func() error
}

// buildApp wires the search stack. On error everything opened so far is
// closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg

	var err error
	a.corpus, err = store.OpenCorpusIndex(cfg.Path(corpusDirName))
	if err != nil {
		return errors.IOError("failed to open corpus index", err)
	}
	a.onClose(a.corpus.Close)

	if err := a.buildRetrieval(ctx); err != nil {
		return err
	}

	caps, err := buildCapabilities(cfg, a.corpus, a.logger)
	if err != nil {
		return err
	}
	a.pool, err = agent.NewPool(caps,
		agent.Config{Size: cfg.Agents.PoolSize, MaxQueued: cfg.Agents.MaxQueued},
		agent.WithLogger(a.logger),
		agent.WithOutcomeHook(func(o agent.Outcome) {
			a.metrics.ObserveAgentTask(string(o.Task.Modality), agent.Label(o.Err), o.Latency)
		}))
	if err != nil {
		return fmt.Errorf("failed to start agent pool: %w", err)
	}
	a.onClose(a.pool.Close)
	a.metrics.RegisterPool(a.pool.Running, a.pool.Waiting, a.pool.Cap)

	a.cache = cache.New(cache.Config{
		Enabled:  cfg.Cache.Enabled,
		Capacity: cfg.Cache.Capacity,
		Shards:   cfg.Cache.Shards,
		TTL:      cfg.Cache.TTL,
	})
	a.onClose(a.cache.Close)

	if err := a.buildSessions(ctx); err != nil {
		return err
	}
	if err := a.buildTelemetry(); err != nil {
		return err
	}
	if err := a.buildSuggestions(); err != nil {
		return err
	}
	return a.buildEngine(caps)
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every component, newest first, and returns the first error.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *app) buildRetrieval(ctx context.Context) error {
	cfg := a.cfg
	embedder, err := embed.NewEmbedder(ctx, embed.Config{
		Provider:   cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		OllamaHost: cfg.Embeddings.OllamaHost,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return errors.New(errors.ErrCodeEmbedderUnavailable, "failed to create embedder", err)
	}
	a.embedder = embedder
	a.onClose(embedder.Close)

	hnswPath := ""
	if cfg.Retrieval.Backend == store.BackendHNSW {
		hnswPath = cfg.Path(vectorsFileName)
	}
	a.vectors, err = store.OpenVectorIndex(store.VectorOptions{
		Backend:          cfg.Retrieval.Backend,
		Dimensions:       embedder.Dimensions(),
		HNSWPath:         hnswPath,
		QdrantEndpoint:   cfg.Retrieval.Endpoint,
		QdrantCollection: cfg.Retrieval.Collection,
	})
	if err != nil {
		return errors.IOError("failed to open vector index", err)
	}
	if a.vectors != nil {
		a.onClose(a.vectors.Close)
	}

	a.retrieval = retrieval.NewClient(embedder, a.vectors, retrieval.Config{
		Timeout:         cfg.Retrieval.Timeout,
		BreakerFailures: cfg.Retrieval.BreakerFailures,
		BreakerReset:    cfg.Retrieval.BreakerReset,
	})
	return nil
}

// buildCapabilities registers a corpus capability per configured modality.
// The optional language model decorates the text capability.
func buildCapabilities(cfg *config.Config, corpus agent.CorpusSearcher, logger *slog.Logger) (agent.Capabilities, error) {
	var caps agent.Capabilities
	for _, raw := range cfg.Agents.Modalities {
		m, err := query.ParseModality(raw)
		if err != nil {
			return caps, err
		}
		if caps, err = caps.Set(m, agent.NewCorpusCapability(corpus, m)); err != nil {
			return caps, err
		}
	}

	if !cfg.Agents.LLM.Enabled || caps.Text == nil {
		return caps, nil
	}
	llmCfg := agent.LLMConfig{
		BaseURL:       cfg.Agents.LLM.BaseURL,
		Model:         cfg.Agents.LLM.Model,
		APIKey:        cfg.Agents.LLM.APIKey,
		MaxCandidates: cfg.Agents.LLM.MaxCandidates,
		Temperature:   cfg.Agents.LLM.Temperature,
	}
	model, err := agent.NewLLMModel(llmCfg)
	if err != nil {
		return caps, err
	}
	caps.Text = agent.NewLLMCapability(caps.Text, model, query.ModalityText, llmCfg)
	logger.Info("llm_capability_enabled", slog.String("model", llmCfg.Model))
	return caps, nil
}

func (a *app) buildSessions(ctx context.Context) error {
	persister, err := session.OpenPersister(a.cfg.Sessions.Backend, a.cfg.DataDir, a.logger)
	if err != nil {
		return errors.IOError("failed to open session persistence", err)
	}
	opts := []session.Option{session.WithLogger(a.logger)}
	if persister != nil {
		opts = append(opts, session.WithPersister(persister))
	}

	a.sessions, err = session.NewStore(ctx, session.Config{
		Capacity: a.cfg.Sessions.Capacity,
		Shards:   a.cfg.Sessions.Shards,
	}, opts...)
	if err != nil {
		if persister != nil {
			_ = persister.Close()
		}
		return err
	}
	a.onClose(a.sessions.Close)
	return nil
}

func (a *app) buildTelemetry() error {
	if !a.cfg.Telemetry.Enabled {
		return nil
	}
	st, err := telemetry.OpenSQLiteStore(a.cfg.Path(telemetryDBName))
	if err != nil {
		return errors.IOError("failed to open telemetry store", err)
	}
	tcfg := telemetry.DefaultConfig()
	tcfg.FlushInterval = a.cfg.Telemetry.FlushInterval
	a.telemetry = telemetry.NewRecorder(st, tcfg)
	a.onClose(a.telemetry.Close)
	return nil
}

func (a *app) buildSuggestions() error {
	cfg := a.cfg.Suggestions
	a.popular = suggest.NewPopularIndex(cfg.Popular)
	if cfg.PopularFile != "" {
		if err := a.popular.LoadFile(cfg.PopularFile); err != nil {
			return errors.ConfigError("failed to load popular queries", err)
		}
	}
	a.refreshLearned()

	a.suggest = suggest.New(a.sessions, a.popular, suggest.Config{
		MinLength:      cfg.MinLength,
		MaxSuggestions: cfg.MaxSuggestions,
		FuzzyThreshold: cfg.FuzzyThreshold,
		Templates:      cfg.Templates,
	})
	return nil
}

// refreshLearned feeds the most frequent recorded queries into the popular
// index.
func (a *app) refreshLearned() {
	if a.telemetry == nil {
		return
	}
	top := a.telemetry.TopQueries(learnedQueryTopN)
	learned := make([]suggest.PopularQuery, len(top))
	for i, c := range top {
		learned[i] = suggest.PopularQuery{Query: c.Key, Count: int(c.Count)}
	}
	a.popular.SetLearned(learned)
}

// learnLoop refreshes the learned popular queries every interval until ctx ends.
func (a *app) learnLoop(ctx context.Context, interval time.Duration) {
	if a.telemetry == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshLearned()
		}
	}
}

func (a *app) buildEngine(caps agent.Capabilities) error {
	cfg := a.cfg

	deadlines := make(map[query.SearchType]time.Duration, len(cfg.Search.Deadlines))
	for name, d := range cfg.Search.Deadlines {
		t, err := query.ParseSearchType(name)
		if err != nil {
			return err
		}
		deadlines[t] = d
	}

	var retriever dispatch.Retriever
	if a.retrieval.Enabled() {
		retriever = a.retrieval
	}
	d := dispatch.New(a.pool, retriever, dispatch.Config{
		Deadlines:           deadlines,
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		CandidatesPerAgent:  cfg.Agents.CandidatesPerAgent,
	})

	weights := search.Weights{
		Score:    cfg.Fusion.ScoreWeight,
		Modality: cfg.Fusion.ModalityWeight,
		Priority: make(map[query.Modality]float64, len(cfg.Fusion.ModalityPriority)),
	}
	for name, p := range cfg.Fusion.ModalityPriority {
		weights.Priority[query.Modality(strings.ToLower(name))] = p
	}
	fuser := search.NewFuser(weights, cfg.Search.MaxResults)

	defaultType, err := query.ParseSearchType(cfg.Search.DefaultType)
	if err != nil {
		return err
	}
	normalizer := query.NewNormalizer(
		query.WithMaxLength(cfg.Search.MaxQueryLength),
		query.WithDefaultType(defaultType),
	)

	opts := []engine.Option{
		engine.WithCache(a.cache),
		engine.WithSessions(a.sessions),
		engine.WithMetrics(a.metrics),
		engine.WithLogger(a.logger),
		engine.WithHealthChecks(a.healthChecks(caps)...),
	}
	if a.telemetry != nil {
		opts = append(opts, engine.WithTelemetry(a.telemetry))
	}

	a.engine, err = engine.New(normalizer, d, fuser, engine.Config{
		OverallTimeout:   cfg.Search.OverallTimeout,
		MinScore:         cfg.Fusion.MinScore,
		CreativeMinScore: cfg.Fusion.CreativeMinScore,
	}, opts...)
	return err
}

func (a *app) healthChecks(caps agent.Capabilities) []engine.HealthCheck {
	checks := []engine.HealthCheck{
		{Name: "agents", Check: func(context.Context) error {
			if !a.pool.Healthy() {
				return fmt.Errorf("agent pool is closed")
			}
			if len(caps.Registered()) == 0 {
				return fmt.Errorf("no modality has a capability")
			}
			return nil
		}},
		{Name: "corpus", Check: func(context.Context) error {
			_, err := a.corpus.Count()
			return err
		}},
		{Name: "sessions", Check: func(context.Context) error {
			if !a.sessions.Healthy() {
				return errors.SessionUnavailable(nil)
			}
			return nil
		}},
	}

	cacheCheck := engine.HealthCheck{Name: "cache"}
	if a.cfg.Cache.Enabled {
		cacheCheck.Check = func(context.Context) error {
			if !a.cache.Healthy() {
				return errors.CacheUnavailable(nil)
			}
			return nil
		}
	}
	retrievalCheck := engine.HealthCheck{Name: "retrieval"}
	if a.retrieval.Enabled() {
		retrievalCheck.Check = a.retrieval.Health
	}
	return append(checks, cacheCheck, retrievalCheck)
}
