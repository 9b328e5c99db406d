package suggest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/hypersearch/internal/watcher"
)

// PopularQuery is one entry of the popular-query index.
type PopularQuery struct {
	Query string `yaml:"query" json:"query"`
	Count int    `yaml:"count" json:"count"`
}

// UnmarshalYAML accepts either a bare string or a {query, count} mapping.
func (p *PopularQuery) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Query = node.Value
		p.Count = 1
		return nil
	}
	type plain PopularQuery
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	if v.Count <= 0 {
		v.Count = 1
	}
	*p = PopularQuery(v)
	return nil
}

// LoadPopularFile reads a YAML list of popular queries.
func LoadPopularFile(path string) ([]PopularQuery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read popular queries: %w", err)
	}
	var entries []PopularQuery
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse popular queries %s: %w", path, err)
	}
	return entries, nil
}

// PopularIndex merges popular queries from configuration, an optional
// hot-reloaded file, and learned telemetry counts.
type PopularIndex struct {
	mu      sync.RWMutex
	static  []PopularQuery
	file    []PopularQuery
	learned []PopularQuery
	merged  []PopularQuery
	path    string
}

// NewPopularIndex creates an index seeded with the configured list.
func NewPopularIndex(static []string) *PopularIndex {
	p := &PopularIndex{}
	for _, q := range static {
		if q = strings.TrimSpace(q); q != "" {
			p.static = append(p.static, PopularQuery{Query: q, Count: 1})
		}
	}
	p.rebuild()
	return p
}

// LoadFile reads path into the index. A missing file empties the file layer.
func (p *PopularIndex) LoadFile(path string) error {
	entries, err := LoadPopularFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	p.mu.Lock()
	p.path = path
	p.file = entries
	p.mu.Unlock()
	p.rebuild()
	return nil
}

// Watch reloads the file whenever it changes, until ctx ends. LoadFile must
// have been called first.
func (p *PopularIndex) Watch(ctx context.Context, opts watcher.Options) error {
	p.mu.RLock()
	path := p.path
	p.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no popular-query file loaded")
	}

	w := watcher.New(opts)
	if err := w.Add(path); err != nil {
		_ = w.Stop()
		return err
	}
	go func() {
		defer func() { _ = w.Stop() }()
		_ = w.Run(ctx, func([]watcher.Event) {
			if err := p.LoadFile(path); err != nil {
				slog.Warn("popular_queries_reload_failed",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return
			}
			slog.Info("popular_queries_reloaded",
				slog.String("path", path),
				slog.Int("entries", p.Len()))
		})
	}()
	return nil
}

// SetLearned replaces the telemetry layer.
func (p *PopularIndex) SetLearned(counts []PopularQuery) {
	p.mu.Lock()
	p.learned = append([]PopularQuery(nil), counts...)
	p.mu.Unlock()
	p.rebuild()
}

// rebuild merges the layers, summing counts case-insensitively. The first
// spelling seen wins.
func (p *PopularIndex) rebuild() {
	p.mu.Lock()
	defer p.mu.Unlock()

	byKey := make(map[string]*PopularQuery)
	var order []string
	for _, layer := range [][]PopularQuery{p.static, p.file, p.learned} {
		for _, e := range layer {
			q := strings.Join(strings.Fields(e.Query), " ")
			if q == "" {
				continue
			}
			key := strings.ToLower(q)
			if existing, ok := byKey[key]; ok {
				existing.Count += e.Count
				continue
			}
			byKey[key] = &PopularQuery{Query: q, Count: e.Count}
			order = append(order, key)
		}
	}

	merged := make([]PopularQuery, 0, len(order))
	for _, key := range order {
		merged = append(merged, *byKey[key])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Count != merged[j].Count {
			return merged[i].Count > merged[j].Count
		}
		return strings.ToLower(merged[i].Query) < strings.ToLower(merged[j].Query)
	})
	p.merged = merged
}

// Entries returns every popular query, by count descending then alphabetical.
func (p *PopularIndex) Entries() []PopularQuery {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PopularQuery(nil), p.merged...)
}

// Len returns the number of distinct popular queries.
func (p *PopularIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.merged)
}
