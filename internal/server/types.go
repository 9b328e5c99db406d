package server

import (
	"time"

	"github.com/Aman-CERP/hypersearch/internal/agent"
	"github.com/Aman-CERP/hypersearch/internal/engine"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
	"github.com/Aman-CERP/hypersearch/internal/session"
)

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query      string         `json:"query"`
	Type       string         `json:"type,omitempty"`
	Modalities []string       `json:"modalities,omitempty"`
	Filters    map[string]any `json:"filters,omitempty"`
}

// ResultItem is one ranked result.
type ResultItem struct {
	SourceID      string            `json:"source_id"`
	Title         string            `json:"title"`
	Content       string            `json:"content"`
	Score         float64           `json:"score"`
	CombinedScore float64           `json:"combined_score"`
	Modality      string            `json:"modality"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// SearchResponse is the 200 body of POST /api/search.
type SearchResponse struct {
	Query          string           `json:"query"`
	QueryID        string           `json:"query_id"`
	Type           string           `json:"type"`
	Modalities     []string         `json:"modalities"`
	Results        []ResultItem     `json:"results"`
	Total          int              `json:"total"`
	ProcessingTime float64          `json:"processing_time"`
	Cached         bool             `json:"cached"`
	Analysis       query.Analysis   `json:"analysis"`
	Degraded       *engine.Degraded `json:"degraded,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// SuggestRequest is the body of POST /api/search/suggestions.
type SuggestRequest struct {
	Query string `json:"query"`
}

// SuggestResponse always carries an array, possibly empty.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// AgentsResponse is the body of GET /api/agents.
type AgentsResponse struct {
	Agents      []agent.StatsSnapshot `json:"agents"`
	TotalAgents int                   `json:"total_agents"`
	Active      int                   `json:"active_agents"`
	Running     int                   `json:"running"`
	Waiting     int                   `json:"waiting"`
	PoolSize    int                   `json:"pool_size"`
}

// HistoryResponse is the body of GET /api/search/history.
type HistoryResponse struct {
	History []session.Entry `json:"history"`
	Total   int             `json:"total"`
}

// ErrorResponse is the error envelope of every non-2xx answer.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewSearchResponse converts an engine result to its wire form.
func NewSearchResponse(res *engine.Result) SearchResponse {
	items := make([]ResultItem, len(res.Fused.Results))
	for i, r := range res.Fused.Results {
		items[i] = toItem(r)
	}

	mods := make([]string, len(res.Query.Modalities))
	for i, m := range res.Query.Modalities {
		mods[i] = string(m)
	}

	resp := SearchResponse{
		Query:          res.Query.Text,
		QueryID:        res.Query.ID,
		Type:           string(res.Query.Type),
		Modalities:     mods,
		Results:        items,
		Total:          len(items),
		ProcessingTime: res.ProcessingTime.Seconds(),
		Cached:         res.Cached,
		Analysis:       res.Query.Analysis,
		Timestamp:      res.Query.SubmittedAt,
	}
	if res.Degraded.Any() {
		d := res.Degraded
		resp.Degraded = &d
	}
	return resp
}

func toItem(r search.Ranked) ResultItem {
	return ResultItem{
		SourceID:      r.SourceID,
		Title:         r.Title,
		Content:       r.Content,
		Score:         r.Score,
		CombinedScore: r.CombinedScore,
		Modality:      string(r.Modality),
		Metadata:      r.Metadata,
	}
}
