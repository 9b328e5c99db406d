package search

import (
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Aman-CERP/hypersearch/internal/query"
)

// DefaultMaxResults caps a fused result list.
const DefaultMaxResults = 50

// Weights controls how a candidate's combined score is computed:
//
//	combined = Score*score + Modality*priority(modality)
type Weights struct {
	Score    float64
	Modality float64
	Priority map[query.Modality]float64
}

// DefaultWeights favours relevance, with a small boost for text and code.
func DefaultWeights() Weights {
	return Weights{
		Score:    0.8,
		Modality: 0.2,
		Priority: map[query.Modality]float64{
			query.ModalityText:  1.0,
			query.ModalityCode:  1.0,
			query.ModalityImage: 0.7,
			query.ModalityAudio: 0.5,
			query.ModalityVideo: 0.5,
		},
	}
}

// FuseOptions are the per-query fusion parameters.
type FuseOptions struct {
	// MinScore drops candidates whose raw score is below it.
	MinScore float64
}

// Fuser merges source results into a deduplicated, deterministically ordered list.
type Fuser struct {
	weights    Weights
	maxResults int
}

// NewFuser creates a Fuser. A non-positive maxResults uses DefaultMaxResults.
func NewFuser(weights Weights, maxResults int) *Fuser {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Fuser{weights: weights, maxResults: maxResults}
}

// MaxResults returns the result cap.
func (f *Fuser) MaxResults() int {
	return f.maxResults
}

// Fuse deduplicates by content fingerprint (highest score wins, earlier source
// on ties), scores, sorts and truncates. The output depends only on the set of
// sources and their ranks, never on the order they arrived in.
//
// Ordering: combined score desc → source rank asc → title asc → fingerprint asc.
func (f *Fuser) Fuse(sources []SourceResult, opts FuseOptions) *FusedResult {
	ordered := make([]SourceResult, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})

	best := make(map[uint64]*Ranked)
	for _, src := range ordered {
		for _, c := range src.Candidates {
			if math.IsNaN(c.Score) {
				continue
			}
			c.Score = clamp01(c.Score)
			if c.Score < opts.MinScore {
				continue
			}

			fp := Fingerprint(c.Title, c.Content)
			if prev, ok := best[fp]; ok && prev.Score >= c.Score {
				continue
			}
			best[fp] = &Ranked{
				Candidate:     c,
				CombinedScore: f.combined(c),
				Fingerprint:   fp,
				sourceRank:    src.Rank,
			}
		}
	}

	results := make([]Ranked, 0, len(best))
	for _, r := range best {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		return less(&results[i], &results[j])
	})

	if len(results) > f.maxResults {
		results = results[:f.maxResults]
	}

	return &FusedResult{Results: results}
}

func (f *Fuser) combined(c Candidate) float64 {
	return f.weights.Score*c.Score + f.weights.Modality*f.weights.Priority[c.Modality]
}

func less(a, b *Ranked) bool {
	if a.CombinedScore != b.CombinedScore {
		return a.CombinedScore > b.CombinedScore
	}
	if a.sourceRank != b.sourceRank {
		return a.sourceRank < b.sourceRank
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.Fingerprint < b.Fingerprint
}

// Fingerprint hashes a candidate's normalized title and content. Case and
// whitespace differences do not change the fingerprint.
func Fingerprint(title, content string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(normalizeForHash(title))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(normalizeForHash(content))
	return d.Sum64()
}

func normalizeForHash(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
