// Package suggest produces query completions from search history, popular
// queries, fuzzy matches and templates. It never leaves the process.
package suggest

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"github.com/Aman-CERP/hypersearch/internal/session"
)

// Defaults.
const (
	DefaultMinLength      = 3
	DefaultMaxSuggestions = 5
	DefaultFuzzyThreshold = 0.85
)

// DefaultTemplates fill remaining slots; {q} is replaced by the input.
var DefaultTemplates = []string{
	"{q} analysis",
	"{q} overview",
	"{q} examples",
	"what is {q}",
	"how to {q}",
}

// History lists a principal's recent searches, newest first.
type History interface {
	List(principal string) []session.Entry
}

// Config configures an Engine.
type Config struct {
	MinLength      int
	MaxSuggestions int
	FuzzyThreshold float64
	Templates      []string
}

// Engine produces suggestions.
type Engine struct {
	history History
	popular *PopularIndex
	cfg     Config
}

// New creates an Engine. history and popular may be nil.
func New(history History, popular *PopularIndex, cfg Config) *Engine {
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = DefaultMaxSuggestions
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates
	}
	if popular == nil {
		popular = NewPopularIndex(nil)
	}
	return &Engine{history: history, popular: popular, cfg: cfg}
}

// Popular returns the popular-query index.
func (e *Engine) Popular() *PopularIndex {
	return e.popular
}

// collector accumulates unique suggestions up to a limit.
type collector struct {
	input string
	limit int
	seen  map[string]bool
	out   []string
}

func (c *collector) add(s string) bool {
	s = strings.Join(strings.Fields(s), " ")
	key := strings.ToLower(s)
	if s == "" || key == c.input || c.seen[key] {
		return len(c.out) < c.limit
	}
	c.seen[key] = true
	c.out = append(c.out, s)
	return len(c.out) < c.limit
}

func (c *collector) full() bool {
	return len(c.out) >= c.limit
}

// Suggest returns up to MaxSuggestions completions for partial. Inputs
// shorter than MinLength runes yield an empty, non-nil list.
func (e *Engine) Suggest(ctx context.Context, principal, partial string) []string {
	input := strings.Join(strings.Fields(partial), " ")
	if utf8.RuneCountInString(input) < e.cfg.MinLength {
		return []string{}
	}
	lower := strings.ToLower(input)
	c := &collector{input: lower, limit: e.cfg.MaxSuggestions, seen: make(map[string]bool)}

	// History prefix matches, most recent first.
	var history []string
	if e.history != nil && principal != "" {
		for _, entry := range e.history.List(principal) {
			history = append(history, entry.Query)
			if strings.HasPrefix(strings.ToLower(entry.Query), lower) && !c.add(entry.Query) {
				return c.out
			}
		}
	}

	// Popular prefix matches, by count then alphabetical.
	popular := e.popular.Entries()
	for _, p := range popular {
		if strings.HasPrefix(strings.ToLower(p.Query), lower) && !c.add(p.Query) {
			return c.out
		}
	}

	if ctx.Err() != nil {
		return c.out
	}

	// Typo-tolerant matches.
	pool := make([]string, 0, len(history)+len(popular))
	pool = append(pool, history...)
	for _, p := range popular {
		pool = append(pool, p.Query)
	}
	for _, m := range fuzzyMatches(lower, pool, e.cfg.FuzzyThreshold) {
		if !c.add(m) {
			return c.out
		}
	}

	for _, tmpl := range e.cfg.Templates {
		if c.full() {
			break
		}
		c.add(strings.ReplaceAll(tmpl, "{q}", input))
	}
	return c.out
}

type scored struct {
	text  string
	score float32
	order int
}

// fuzzyMatches returns candidates whose leading runes are Jaro-Winkler
// similar to input, best first. Exact prefix matches are left to the
// earlier sources.
func fuzzyMatches(input string, candidates []string, threshold float64) []string {
	n := utf8.RuneCountInString(input)
	var matches []scored
	for i, cand := range candidates {
		lowerCand := strings.ToLower(cand)
		if strings.HasPrefix(lowerCand, input) {
			continue
		}
		prefix := lowerCand
		if runes := []rune(lowerCand); len(runes) > n {
			prefix = string(runes[:n])
		}
		score, err := edlib.StringsSimilarity(input, prefix, edlib.JaroWinkler)
		if err != nil || float64(score) < threshold {
			continue
		}
		matches = append(matches, scored{text: cand, score: score, order: i})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.text
	}
	return out
}
