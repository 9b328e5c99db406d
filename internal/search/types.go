// Package search holds the result types shared by every source and the fuser
// that merges them into one ranked answer set.
package search

import (
	"time"

	"github.com/Aman-CERP/hypersearch/internal/query"
)

// Candidate is one partial result emitted by an agent or the retrieval client.
// Candidates are immutable once emitted.
type Candidate struct {
	SourceID string            `json:"source_id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Score    float64           `json:"score"`
	Modality query.Modality    `json:"modality"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SourceResult is everything one source reported for a query.
type SourceResult struct {
	// Rank is the source's dispatch position; lower ranks win ties.
	Rank       int
	SourceID   string
	Candidates []Candidate
	Err        error
	Latency    time.Duration
}

// Ranked is a deduplicated candidate with its combined score.
type Ranked struct {
	Candidate
	CombinedScore float64 `json:"combined_score"`
	Fingerprint   uint64  `json:"-"`
	sourceRank    int
}

// FusedResult is the final ranked answer set. It is never mutated after the
// fuser returns it, so it may be shared through the cache.
type FusedResult struct {
	Results        []Ranked      `json:"results"`
	ProcessingTime time.Duration `json:"-"`
}

// SourceAgentPrefix and SourceRetrievalPrefix prefix SourceIDs.
const (
	SourceAgentPrefix     = "agent:"
	SourceRetrievalPrefix = "retrieval:"
)

// AgentSource returns the SourceID for the agent serving m.
func AgentSource(m query.Modality) string {
	return SourceAgentPrefix + string(m)
}

// RetrievalSource returns the SourceID for a retrieval backend.
func RetrievalSource(backend string) string {
	return SourceRetrievalPrefix + backend
}
