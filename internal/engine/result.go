package engine

import (
	"time"

	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
)

// Result is the engine's answer to one search.
type Result struct {
	Query *query.Query
	Fused *search.FusedResult

	// Cached is set when Fused came from the response cache.
	Cached bool

	// ProcessingTime covers this call, including a cache lookup.
	ProcessingTime time.Duration

	Degraded Degraded
}

// Degraded lists what went wrong without failing the search. Values are
// structured error codes.
type Degraded struct {
	// Sources maps a SourceID to the code it failed with.
	Sources map[string]string `json:"sources,omitempty"`
	Cache   string            `json:"cache,omitempty"`
	Session string            `json:"session,omitempty"`

	// AllSourcesFailed is set when every agent and retrieval failed.
	AllSourcesFailed bool `json:"all_sources_failed,omitempty"`
}

// Any reports whether anything degraded.
func (d Degraded) Any() bool {
	return len(d.Sources) > 0 || d.Cache != "" || d.Session != "" || d.AllSourcesFailed
}

// outcome is a computed (uncached) fused result with its source failures,
// shared between singleflight callers.
type outcome struct {
	fused     *search.FusedResult
	sources   map[string]string
	allFailed bool
}
