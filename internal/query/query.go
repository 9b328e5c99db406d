// Package query turns raw search requests into canonical Query values.
//
// Normalization is the only validation point on the search path: everything
// downstream (dispatcher, pool, fuser, cache) can assume a Query is well formed.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/hypersearch/internal/errors"
)

// Modality is one of the closed set of content kinds an agent can search.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
	ModalityCode  Modality = "code"
)

// AllModalities returns every modality in canonical order. Dispatch order
// follows this order, which makes fusion tie-breaks reproducible.
func AllModalities() []Modality {
	return []Modality{ModalityText, ModalityImage, ModalityAudio, ModalityVideo, ModalityCode}
}

// rank returns the canonical position of m, or -1 if m is not a known modality.
func (m Modality) rank() int {
	for i, known := range AllModalities() {
		if m == known {
			return i
		}
	}
	return -1
}

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	return m.rank() >= 0
}

// ParseModality parses a modality tag case-insensitively.
func ParseModality(s string) (Modality, error) {
	m := Modality(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errors.UnsupportedModality(s)
	}
	return m, nil
}

// SearchType selects the latency/depth trade-off for a query.
type SearchType string

const (
	TypeComprehensive SearchType = "comprehensive"
	TypeQuick         SearchType = "quick"
	TypeDetailed      SearchType = "detailed"
	TypeCreative      SearchType = "creative"
)

// ParseSearchType parses a search type case-insensitively.
func ParseSearchType(s string) (SearchType, error) {
	switch t := SearchType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeComprehensive, TypeQuick, TypeDetailed, TypeCreative:
		return t, nil
	default:
		return "", errors.InvalidQuery(fmt.Sprintf("unknown search type %q", s)).
			WithDetail("type", s)
	}
}

// Request is the raw, unvalidated input to Normalize.
type Request struct {
	Text       string
	Type       string
	Modalities []string
	Filters    map[string]any
	Principal  string
}

// Query is a normalized search request. It is never mutated after Normalize
// returns it.
type Query struct {
	ID          string            `json:"query_id"`
	Text        string            `json:"query"`
	Modalities  []Modality        `json:"modalities"`
	Type        SearchType        `json:"type"`
	Principal   string            `json:"-"`
	Filters     map[string]string `json:"filters,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Analysis    Analysis          `json:"analysis"`
}

// HasModality reports whether m was requested.
func (q *Query) HasModality(m Modality) bool {
	for _, have := range q.Modalities {
		if have == m {
			return true
		}
	}
	return false
}

// AnonymousPrincipal is used when a request carries no principal.
const AnonymousPrincipal = "anonymous"

// Normalizer validates and canonicalizes requests.
type Normalizer struct {
	maxLength   int
	defaultType SearchType
	analyzer    *Analyzer
	now         func() time.Time
	newID       func() string
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithMaxLength sets the maximum query length in runes.
func WithMaxLength(limit int) NormalizerOption {
	return func(n *Normalizer) {
		if limit > 0 {
			n.maxLength = limit
		}
	}
}

// WithDefaultType sets the type used when a request omits one.
func WithDefaultType(t SearchType) NormalizerOption {
	return func(n *Normalizer) {
		n.defaultType = t
	}
}

// WithAnalyzer replaces the query analyzer.
func WithAnalyzer(a *Analyzer) NormalizerOption {
	return func(n *Normalizer) {
		n.analyzer = a
	}
}

// WithClock injects the time source for SubmittedAt.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithIDGenerator injects the query ID source.
func WithIDGenerator(fn func() string) NormalizerOption {
	return func(n *Normalizer) {
		n.newID = fn
	}
}

// NewNormalizer creates a Normalizer with a 1000-rune limit and the
// comprehensive search type as default.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		maxLength:   1000,
		defaultType: TypeComprehensive,
		analyzer:    NewAnalyzer(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates req and returns its canonical form.
//
// It fails with InvalidQuery for empty or oversized text, an unknown search
// type, or non-scalar filters, and with UnsupportedModality for an unknown
// modality tag. Apart from the generated ID and timestamp it has no side effects.
func (n *Normalizer) Normalize(req Request) (*Query, error) {
	text := strings.Join(strings.Fields(req.Text), " ")
	if text == "" {
		return nil, errors.InvalidQuery("query text is empty")
	}
	if length := len([]rune(text)); length > n.maxLength {
		return nil, errors.InvalidQuery(fmt.Sprintf("query is %d characters, limit is %d", length, n.maxLength)).
			WithDetail("limit", fmt.Sprint(n.maxLength))
	}

	searchType := n.defaultType
	if strings.TrimSpace(req.Type) != "" {
		t, err := ParseSearchType(req.Type)
		if err != nil {
			return nil, err
		}
		searchType = t
	}

	modalities, err := normalizeModalities(req.Modalities)
	if err != nil {
		return nil, err
	}

	filters, err := normalizeFilters(req.Filters)
	if err != nil {
		return nil, err
	}

	principal := strings.TrimSpace(req.Principal)
	if principal == "" {
		principal = AnonymousPrincipal
	}

	return &Query{
		ID:          n.newID(),
		Text:        text,
		Modalities:  modalities,
		Type:        searchType,
		Principal:   principal,
		Filters:     filters,
		SubmittedAt: n.now(),
		Analysis:    n.analyzer.Analyze(text),
	}, nil
}

// normalizeModalities dedups and orders modality tags canonically.
// An empty list means text only.
func normalizeModalities(raw []string) ([]Modality, error) {
	if len(raw) == 0 {
		return []Modality{ModalityText}, nil
	}

	seen := make(map[Modality]bool, len(raw))
	for _, s := range raw {
		m, err := ParseModality(s)
		if err != nil {
			return nil, err
		}
		seen[m] = true
	}

	out := make([]Modality, 0, len(seen))
	for _, m := range AllModalities() {
		if seen[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

// normalizeFilters trims keys and renders scalar values as strings.
func normalizeFilters(raw map[string]any) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, errors.InvalidQuery("filter keys must not be empty")
		}
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[key] = strings.TrimSpace(val)
		case bool, float64, float32, int, int64, int32:
			out[key] = fmt.Sprint(val)
		default:
			return nil, errors.InvalidQuery(fmt.Sprintf("filter %q must be a string, number or boolean", key)).
				WithDetail("filter", key)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
