package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// filterOverfetch widens the graph search when filters will discard hits.
const filterOverfetch = 4

// HNSWConfig configures the local vector index.
type HNSWConfig struct {
	Dimensions int
	// Metric is "cos" (default) or "l2".
	Metric   string
	M        int
	EfSearch int
}

// HNSWIndex is an in-process VectorIndex on coder/hnsw. Documents are kept
// alongside the graph so hits can be returned without a second lookup.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	idMap   map[string]uint64
	docs    map[uint64]Document
	nextKey uint64

	closed bool
}

// hnswMetadata stores ID mappings and documents for persistence.
type hnswMetadata struct {
	IDMap   map[string]uint64
	Docs    map[uint64]Document
	NextKey uint64
	Config  HNSWConfig
}

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(cfg HNSWConfig) *HNSWIndex {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWIndex{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		docs:   make(map[uint64]Document),
	}
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Name implements VectorIndex.
func (s *HNSWIndex) Name() string {
	return "hnsw"
}

// Upsert implements VectorIndex. A replaced ID keeps its old graph node
// orphaned; coder/hnsw misbehaves when its last node is deleted.
func (s *HNSWIndex) Upsert(_ context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, r := range records {
		if len(r.Embedding) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(r.Embedding)}
		}
	}

	for _, r := range records {
		if old, exists := s.idMap[r.Document.ID]; exists {
			delete(s.docs, old)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(r.Embedding))
		copy(vec, r.Embedding)
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[r.Document.ID] = key
		s.docs[key] = r.Document
	}
	return nil
}

// Search implements VectorIndex.
func (s *HNSWIndex) Search(ctx context.Context, vector []float32, k int, filter VectorFilter) ([]VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(vector) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(vector)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []VectorHit{}, nil
	}

	q := make([]float32, len(vector))
	copy(q, vector)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	fetch := k
	if !filter.IsZero() || s.graph.Len() > len(s.docs) {
		fetch = k * filterOverfetch
	}

	nodes := s.graph.Search(q, fetch)
	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, ok := s.docs[node.Key]
		if !ok || !filter.Matches(doc) {
			continue
		}
		distance := s.graph.Distance(q, node.Value)
		hits = append(hits, VectorHit{Document: doc, Score: distanceToScore(distance, s.config.Metric)})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Health implements VectorIndex. A local index is ready unless closed.
func (s *HNSWIndex) Health(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// Count returns the number of live documents.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Save persists the graph to path and the documents to path+".meta".
// Both are written to a temp file and renamed.
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	if err := s.saveMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}

	meta := hnswMetadata{IDMap: s.idMap, Docs: s.docs, NextKey: s.nextKey, Config: s.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadHNSWIndex reads an index written by Save. A missing file yields an
// empty index built from cfg.
func LoadHNSWIndex(path string, cfg HNSWConfig) (*HNSWIndex, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewHNSWIndex(cfg), nil
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() { _ = metaFile.Close() }()

	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	if cfg.Dimensions != 0 && meta.Config.Dimensions != cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: cfg.Dimensions, Got: meta.Config.Dimensions}
	}

	s := NewHNSWIndex(meta.Config)
	s.idMap = meta.IDMap
	s.docs = meta.Docs
	s.nextKey = meta.NextKey

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	return s, nil
}

// Close implements VectorIndex.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorIndex = (*HNSWIndex)(nil)

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps a distance to a similarity in [0,1].
// Cosine distance spans 0..2; L2 spans 0..inf.
func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}
