package query

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
)

// Intent is a coarse classification of what the user is after.
type Intent string

const (
	// IntentInformational marks questions and explanation requests.
	IntentInformational Intent = "informational"
	// IntentNavigational marks everything else (looking for a known thing).
	IntentNavigational Intent = "navigational"
)

// questionPattern matches natural-language question starters.
var questionPattern = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|who|can|does|is|are|should|explain|describe)\s`)

// Analysis is advisory metadata about a query. It never changes which
// modalities are searched.
type Analysis struct {
	Intent              Intent     `json:"intent"`
	Complexity          float64    `json:"complexity"`
	SuggestedModalities []Modality `json:"suggested_modalities"`
	Expansions          []string   `json:"semantic_expansion"`
	Terms               []string   `json:"-"`
}

// Analyzer derives intent, modality hints and synonym expansions from query text.
type Analyzer struct {
	synonyms      map[string][]string
	cues          map[string]Modality
	maxExpansions int
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxExpansions caps the total number of expansion terms.
func WithMaxExpansions(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n >= 0 {
			a.maxExpansions = n
		}
	}
}

// WithCustomSynonyms adds synonym mappings on top of the defaults.
func WithCustomSynonyms(synonyms map[string][]string) AnalyzerOption {
	return func(a *Analyzer) {
		for k, v := range synonyms {
			key := stem(k)
			a.synonyms[key] = append(a.synonyms[key], v...)
		}
	}
}

// NewAnalyzer creates an Analyzer with the default synonym and cue tables.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		synonyms:      make(map[string][]string, len(DefaultSynonyms)),
		cues:          make(map[string]Modality),
		maxExpansions: 5,
	}

	for k, v := range DefaultSynonyms {
		a.synonyms[stem(k)] = v
	}
	for m, words := range ModalityCues {
		for _, w := range words {
			a.cues[stem(w)] = m
		}
	}

	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze inspects normalized query text.
func (a *Analyzer) Analyze(text string) Analysis {
	terms := Tokenize(text)

	intent := IntentNavigational
	if strings.Contains(text, "?") || questionPattern.MatchString(text) {
		intent = IntentInformational
	}

	complexity := float64(len(strings.Fields(text))) / 10
	if complexity > 1 {
		complexity = 1
	}

	return Analysis{
		Intent:              intent,
		Complexity:          complexity,
		SuggestedModalities: a.suggestModalities(terms),
		Expansions:          a.expand(terms),
		Terms:               terms,
	}
}

// suggestModalities always includes text, then any modality cued by a term.
func (a *Analyzer) suggestModalities(terms []string) []Modality {
	cued := map[Modality]bool{ModalityText: true}
	for _, t := range terms {
		if m, ok := a.cues[stem(t)]; ok {
			cued[m] = true
		}
	}

	out := make([]Modality, 0, len(cued))
	for _, m := range AllModalities() {
		if cued[m] {
			out = append(out, m)
		}
	}
	return out
}

// expand returns synonyms for the query terms, excluding the terms themselves.
func (a *Analyzer) expand(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		seen[t] = true
	}

	var out []string
	for _, t := range terms {
		for _, syn := range a.synonyms[stem(t)] {
			if len(out) >= a.maxExpansions {
				return out
			}
			syn = strings.ToLower(syn)
			if !seen[syn] {
				seen[syn] = true
				out = append(out, syn)
			}
		}
	}
	return out
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func stem(word string) string {
	return porter2.Stem(strings.ToLower(word))
}
