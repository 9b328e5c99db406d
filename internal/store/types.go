// Package store provides the corpus text index (bleve), the vector indexes
// (local HNSW or Qdrant), and the SQLite/Badger openers used for persistence.
package store

import (
	"context"
	"fmt"
	"slices"
)

// Document is one corpus entry. Modality is one of the query modality tags.
type Document struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Modality string            `json:"modality"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CorpusQuery is a text query against the corpus index.
type CorpusQuery struct {
	Text       string
	Modality   string
	Expansions []string
	Filters    map[string]string
	Limit      int
}

// CorpusHit is one corpus match. Score is bleve's unbounded relevance score.
type CorpusHit struct {
	Document Document
	Score    float64
}

// VectorRecord is a document with its embedding, ready for upsert.
type VectorRecord struct {
	Document  Document
	Embedding []float32
}

// VectorHit is one nearest-neighbour match. Score is a similarity in [0,1].
type VectorHit struct {
	Document Document
	Score    float32
}

// VectorIndex is a similarity index over embedded documents.
type VectorIndex interface {
	// Upsert indexes records. Existing IDs are replaced.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Search returns up to k documents closest to vector that pass filter.
	Search(ctx context.Context, vector []float32, k int, filter VectorFilter) ([]VectorHit, error)

	// Health reports whether the index can serve queries.
	Health(ctx context.Context) error

	// Name identifies the backend ("hnsw", "qdrant").
	Name() string

	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'hypersearch index' again with the current embedder)", e.Expected, e.Got)
}

// VectorFilter restricts a vector search. Every Metadata key must be present
// with an equal value; the document modality is addressable as "modality".
// A non-empty Modalities admits only documents of those modalities.
type VectorFilter struct {
	Metadata   map[string]string
	Modalities []string
}

// IsZero reports whether f admits every document.
func (f VectorFilter) IsZero() bool {
	return len(f.Metadata) == 0 && len(f.Modalities) == 0
}

// Matches reports whether doc passes f.
func (f VectorFilter) Matches(doc Document) bool {
	if len(f.Modalities) > 0 && !slices.Contains(f.Modalities, doc.Modality) {
		return false
	}
	for k, want := range f.Metadata {
		got, ok := doc.Metadata[k]
		if k == "modality" {
			got, ok = doc.Modality, true
		}
		if !ok || got != want {
			return false
		}
	}
	return true
}
