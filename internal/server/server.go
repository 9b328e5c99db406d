// Package server exposes the search engine over HTTP/JSON.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Aman-CERP/hypersearch/internal/agent"
	"github.com/Aman-CERP/hypersearch/internal/engine"
	"github.com/Aman-CERP/hypersearch/internal/metrics"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/session"
	"github.com/Aman-CERP/hypersearch/internal/telemetry"
)

// Server defaults. A zero rate limit disables limiting.
const (
	DefaultPrincipalHeader  = "X-Principal"
	DefaultSearchRateLimit  = 30
	DefaultSuggestRateLimit = 100
	DefaultShutdownTimeout  = 10 * time.Second

	maxBodyBytes = 1 << 20
)

// Searcher runs searches and reports health.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (*engine.Result, error)
	Health(ctx context.Context) engine.Health
}

// Suggester completes partial queries.
type Suggester interface {
	Suggest(ctx context.Context, principal, partial string) []string
}

// History lists a principal's recent searches.
type History interface {
	List(principal string) []session.Entry
}

// AgentPool reports agent statistics and occupancy.
type AgentPool interface {
	Stats() []agent.StatsSnapshot
	Running() int
	Waiting() int
	Cap() int
}

// Analytics returns the telemetry overview.
type Analytics interface {
	Overview() *telemetry.Overview
}

// Deps are the collaborators behind the endpoints. Searcher is required;
// endpoints whose collaborator is nil answer 503.
type Deps struct {
	Searcher  Searcher
	Suggester Suggester
	History   History
	Agents    AgentPool
	Analytics Analytics
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Config configures a Server.
type Config struct {
	PrincipalHeader  string
	SearchRateLimit  int
	SuggestRateLimit int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the HTTP API.
type Server struct {
	deps Deps
	cfg  Config

	searchLimiter  *RateLimiter
	suggestLimiter *RateLimiter
	logger         *slog.Logger
	handler        http.Handler
}

// New creates a Server.
func New(deps Deps, cfg Config) (*Server, error) {
	if deps.Searcher == nil {
		return nil, fmt.Errorf("server: searcher is required")
	}
	if cfg.PrincipalHeader == "" {
		cfg.PrincipalHeader = DefaultPrincipalHeader
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		deps:           deps,
		cfg:            cfg,
		searchLimiter:  NewRateLimiter(cfg.SearchRateLimit),
		suggestLimiter: NewRateLimiter(cfg.SuggestRateLimit),
		logger:         deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/search/suggestions", s.handleSuggestions)
	mux.HandleFunc("/api/search/history", s.handleHistory)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/analytics/overview", s.handleAnalytics)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found", "invalid_request_error", "not_found")
	})
	s.handler = s.recoverer(s.accessLog(mux))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("http_server_started", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("http_server_stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// principal returns the caller identity, or the anonymous principal.
func (s *Server) principal(r *http.Request) string {
	if p := strings.TrimSpace(r.Header.Get(s.cfg.PrincipalHeader)); p != "" {
		return p
	}
	return query.AnonymousPrincipal
}

// limitKey keys rate limits by principal, or by client IP for anonymous
// callers.
func (s *Server) limitKey(r *http.Request, principal string) string {
	if principal == query.AnonymousPrincipal {
		return "ip:" + ClientIP(r)
	}
	return "principal:" + principal
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("http_handler_panic",
					slog.String("path", r.URL.Path),
					slog.Any("panic", v))
				writeError(w, http.StatusInternalServerError, "internal server error", "server_error", "internal_error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
