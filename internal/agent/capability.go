package agent

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/hypersearch/internal/errors"
	"github.com/Aman-CERP/hypersearch/internal/query"
	"github.com/Aman-CERP/hypersearch/internal/search"
	"github.com/Aman-CERP/hypersearch/internal/store"
)

// Capabilities is the closed set of capabilities, one slot per modality.
// A nil slot means the modality is disabled.
type Capabilities struct {
	Text  Capability
	Image Capability
	Audio Capability
	Video Capability
	Code  Capability
}

// For returns the capability registered for m. An unknown modality or an
// empty slot yields UnsupportedModality.
func (c Capabilities) For(m query.Modality) (Capability, error) {
	var capability Capability
	switch m {
	case query.ModalityText:
		capability = c.Text
	case query.ModalityImage:
		capability = c.Image
	case query.ModalityAudio:
		capability = c.Audio
	case query.ModalityVideo:
		capability = c.Video
	case query.ModalityCode:
		capability = c.Code
	default:
		return nil, errors.UnsupportedModality(string(m))
	}
	if capability == nil {
		return nil, errors.UnsupportedModality(string(m)).
			WithSuggestion("enable the modality under agents.modalities")
	}
	return capability, nil
}

// Set registers capability for m and returns the updated set.
func (c Capabilities) Set(m query.Modality, capability Capability) (Capabilities, error) {
	switch m {
	case query.ModalityText:
		c.Text = capability
	case query.ModalityImage:
		c.Image = capability
	case query.ModalityAudio:
		c.Audio = capability
	case query.ModalityVideo:
		c.Video = capability
	case query.ModalityCode:
		c.Code = capability
	default:
		return c, errors.UnsupportedModality(string(m))
	}
	return c, nil
}

// Registered lists the modalities that have a capability, in canonical order.
func (c Capabilities) Registered() []query.Modality {
	var out []query.Modality
	for _, m := range query.AllModalities() {
		if _, err := c.For(m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// CorpusSearcher is the part of the corpus index a CorpusCapability needs.
type CorpusSearcher interface {
	Search(ctx context.Context, q store.CorpusQuery) ([]store.CorpusHit, error)
}

// DefaultCandidateLimit caps one task's contribution when the task sets no limit.
const DefaultCandidateLimit = 20

// CorpusCapability searches the text corpus for documents of one modality.
type CorpusCapability struct {
	corpus   CorpusSearcher
	modality query.Modality
}

var _ Capability = (*CorpusCapability)(nil)

// NewCorpusCapability creates a corpus-backed capability for m.
func NewCorpusCapability(corpus CorpusSearcher, m query.Modality) *CorpusCapability {
	return &CorpusCapability{corpus: corpus, modality: m}
}

// Name implements Capability.
func (c *CorpusCapability) Name() string {
	return "corpus:" + string(c.modality)
}

// Run implements Capability. Relevance scores are squashed into [0,1) with
// s/(s+1) so they are comparable with similarity scores.
func (c *CorpusCapability) Run(ctx context.Context, task Task) ([]search.Candidate, error) {
	limit := task.Limit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	hits, err := c.corpus.Search(ctx, store.CorpusQuery{
		Text:       task.Text,
		Modality:   string(c.modality),
		Expansions: task.Expansions,
		Filters:    task.Filters,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("corpus search failed: %w", err)
	}

	source := search.AgentSource(c.modality)
	out := make([]search.Candidate, 0, len(hits))
	for _, h := range hits {
		meta := make(map[string]string, len(h.Document.Metadata)+1)
		for k, v := range h.Document.Metadata {
			meta[k] = v
		}
		meta["id"] = h.Document.ID
		out = append(out, search.Candidate{
			SourceID: source,
			Title:    h.Document.Title,
			Content:  h.Document.Content,
			Score:    squash(h.Score),
			Modality: c.modality,
			Metadata: meta,
		})
	}
	return out, nil
}

func squash(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (s + 1)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc struct {
	Label string
	Fn    func(ctx context.Context, task Task) ([]search.Candidate, error)
}

// Name implements Capability.
func (f CapabilityFunc) Name() string { return f.Label }

// Run implements Capability.
func (f CapabilityFunc) Run(ctx context.Context, task Task) ([]search.Candidate, error) {
	return f.Fn(ctx, task)
}
