package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/hypersearch/internal/server"
	"github.com/Aman-CERP/hypersearch/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP search API",
		Long: `Start the HTTP API over the indexes in the data directory.

Endpoints:
  POST /api/search               run a search
  POST /api/search/suggestions   complete a partial query
  GET  /api/search/history       the caller's recent searches
  GET  /api/health               component health
  GET  /api/agents               agent statistics
  GET  /api/analytics/overview   query telemetry
  GET  /metrics                  Prometheus metrics`,
		Example: `  hypersearch serve
  hypersearch serve --addr :9090 --config ./hypersearch.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	unlock, err := lockDataDir(cfg, "stop the other process or point data_dir elsewhere")
	if err != nil {
		return err
	}
	defer unlock()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown_close_failed", slog.String("error", err.Error()))
		}
	}()

	if cfg.Suggestions.PopularFile != "" {
		if err := a.popular.Watch(ctx, watcher.DefaultOptions()); err != nil {
			logger.Warn("popular_queries_watch_failed",
				slog.String("path", cfg.Suggestions.PopularFile),
				slog.String("error", err.Error()))
		}
	}
	go a.learnLoop(ctx, learnInterval(cfg.Telemetry.FlushInterval))

	deps := server.Deps{
		Searcher:  a.engine,
		Suggester: a.suggest,
		History:   a.sessions,
		Agents:    a.pool,
		Metrics:   a.metrics,
		Logger:    logger,
	}
	if a.telemetry != nil {
		deps.Analytics = a.telemetry
	}

	srv, err := server.New(deps, server.Config{
		PrincipalHeader:  cfg.Server.PrincipalHeader,
		SearchRateLimit:  cfg.Server.SearchRateLimit,
		SuggestRateLimit: cfg.Server.SuggestRateLimit,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		ShutdownTimeout:  cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	logger.Info("serve_starting",
		slog.String("addr", cfg.Server.Addr),
		slog.String("data_dir", cfg.DataDir),
		slog.String("retrieval_backend", cfg.Retrieval.Backend),
		slog.Int("pool_size", a.pool.Cap()))
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// learnInterval is how often telemetry feeds the popular-query index.
func learnInterval(flush time.Duration) time.Duration {
	if flush <= 0 {
		return time.Minute
	}
	return flush
}
