// Package telemetry aggregates search telemetry for the analytics overview
// and the learned popular-query list. All data stays local.
package telemetry

import (
	"strings"
	"time"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP50   LatencyBucket = "p50"   // <50ms
	BucketP250  LatencyBucket = "p250"  // 50-250ms
	BucketP1000 LatencyBucket = "p1000" // 250ms-1s
	BucketP5000 LatencyBucket = "p5000" // 1-5s
	BucketSlow  LatencyBucket = "slow"  // >=5s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 50:
		return BucketP50
	case ms < 250:
		return BucketP250
	case ms < 1000:
		return BucketP1000
	case ms < 5000:
		return BucketP5000
	default:
		return BucketSlow
	}
}

// SearchEvent is one completed search.
type SearchEvent struct {
	Query       string
	Type        string
	Modalities  []string
	ResultCount int
	Latency     time.Duration
	CacheHit    bool
	Degraded    bool
	Timestamp   time.Time
}

// IsZeroResult reports whether the search returned nothing.
func (e SearchEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// NormalizeQuery lowercases and collapses whitespace so repeated searches
// count together.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// ExtractTerms returns the lowercased words of query with at least 3 bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// Count is a key with its frequency.
type Count struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Overview is an immutable snapshot served by the analytics endpoint.
type Overview struct {
	TotalSearches       int64                   `json:"total_searches"`
	SearchTypes         map[string]int64        `json:"search_types"`
	Modalities          map[string]int64        `json:"modalities"`
	TopQueries          []Count                 `json:"top_queries"`
	TopTerms            []Count                 `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	AvgLatencyMs        float64                 `json:"avg_latency_ms"`
	CacheHits           int64                   `json:"cache_hits"`
	CacheHitRate        float64                 `json:"cache_hit_rate"`
	DegradedCount       int64                   `json:"degraded_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result searches.
func (o *Overview) ZeroResultPercentage() float64 {
	if o.TotalSearches == 0 {
		return 0
	}
	return float64(o.ZeroResultCount) / float64(o.TotalSearches) * 100
}
