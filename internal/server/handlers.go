package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/session"
)

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error envelope.
func writeError(w http.ResponseWriter, status int, msg, errType, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{Message: msg, Type: errType, Code: code},
	})
}

// writeSearchError maps a structured error to its status and envelope.
func writeSearchError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if se, ok := errors.As(err); ok {
		msg = se.Message
	}
	writeError(w, errors.HTTPStatus(err), msg, errors.ErrorType(err), errors.GetCode(err))
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error", "method_not_allowed")
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured", "unavailable_error", errors.ErrCodeServiceUnavailable)
}

func (s *Server) rateLimited(w http.ResponseWriter, endpoint string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RateLimited(endpoint)
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit_error", errors.ErrCodeRateLimited)
}

// decode reads a JSON body into v, rejecting unknown trailing data.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return errors.ValidationError("malformed JSON body", err)
	}
	if dec.More() {
		return errors.ValidationError("malformed JSON body: trailing data", nil)
	}
	return nil
}

// handleSearch serves POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal := s.principal(r)
	if !s.searchLimiter.Allow(s.limitKey(r, principal)) {
		s.rateLimited(w, "/api/search")
		return
	}

	var req SearchRequest
	if err := decode(r, w, &req); err != nil {
		writeSearchError(w, err)
		return
	}

	res, err := s.deps.Searcher.Search(r.Context(), query.Request{
		Text:       req.Query,
		Type:       req.Type,
		Modalities: req.Modalities,
		Filters:    req.Filters,
		Principal:  principal,
	})
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSearchResponse(res))
}

// handleSuggestions serves POST /api/search/suggestions.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	principal := s.principal(r)
	if !s.suggestLimiter.Allow(s.limitKey(r, principal)) {
		s.rateLimited(w, "/api/search/suggestions")
		return
	}

	var req SuggestRequest
	if err := decode(r, w, &req); err != nil {
		writeSearchError(w, err)
		return
	}

	suggestions := []string{}
	if s.deps.Suggester != nil {
		if got := s.deps.Suggester.Suggest(r.Context(), principal, req.Query); got != nil {
			suggestions = got
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveSuggestions(len(suggestions))
	}
	writeJSON(w, http.StatusOK, SuggestResponse{Suggestions: suggestions})
}

// handleHistory serves GET /api/search/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.History == nil {
		unavailable(w, "search history")
		return
	}

	entries := append([]session.Entry{}, s.deps.History.List(s.principal(r))...)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "invalid_request_error", errors.ErrCodeInvalidInput)
			return
		}
		if n < len(entries) {
			entries = entries[:n]
		}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{History: entries, Total: len(entries)})
}

// handleHealth serves GET /api/health. It always answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Searcher.Health(r.Context()))
}

// handleAgents serves GET /api/agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.Agents == nil {
		unavailable(w, "agent pool")
		return
	}

	stats := s.deps.Agents.Stats()
	active := 0
	for _, st := range stats {
		if st.Status == "active" {
			active++
		}
	}
	writeJSON(w, http.StatusOK, AgentsResponse{
		Agents:      stats,
		TotalAgents: len(stats),
		Active:      active,
		Running:     s.deps.Agents.Running(),
		Waiting:     s.deps.Agents.Waiting(),
		PoolSize:    s.deps.Agents.Cap(),
	})
}

// handleAnalytics serves GET /api/analytics/overview.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.deps.Analytics == nil {
		unavailable(w, "telemetry")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Analytics.Overview())
}
