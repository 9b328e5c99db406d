package store

import (
	"fmt"
	"net/http"
)

// Vector backends.
const (
	BackendHNSW   = "hnsw"
	BackendQdrant = "qdrant"
	BackendNone   = "none"
)

// VectorOptions selects and configures a vector backend.
type VectorOptions struct {
	Backend    string
	Dimensions int

	// HNSWPath is where the local graph is persisted. Empty keeps it in memory.
	HNSWPath string

	QdrantEndpoint   string
	QdrantCollection string
	HTTPClient       *http.Client
}

// OpenVectorIndex builds the configured backend. BackendNone returns (nil, nil).
func OpenVectorIndex(opts VectorOptions) (VectorIndex, error) {
	switch opts.Backend {
	case BackendNone:
		return nil, nil
	case BackendQdrant:
		q, err := NewQdrant(QdrantConfig{
			Endpoint:   opts.QdrantEndpoint,
			Collection: opts.QdrantCollection,
			Dimensions: opts.Dimensions,
			Client:     opts.HTTPClient,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	case BackendHNSW, "":
		cfg := HNSWConfig{Dimensions: opts.Dimensions}
		if opts.HNSWPath == "" {
			return NewHNSWIndex(cfg), nil
		}
		idx, err := LoadHNSWIndex(opts.HNSWPath, cfg)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", opts.Backend)
	}
}
