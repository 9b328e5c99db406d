package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/Aman-CERP/hypersearch/pkg/version"
)

// Payload keys reserved for document fields.
const (
	payloadID       = "_id"
	payloadTitle    = "_title"
	payloadContent  = "_content"
	payloadModality = "modality"
)

// QdrantConfig configures a Qdrant collection client.
type QdrantConfig struct {
	Endpoint   string
	Collection string
	Dimensions int
	Client     *http.Client
}

// Qdrant implements VectorIndex using Qdrant's REST API.
type Qdrant struct {
	endpoint   string
	collection string
	dimension  int
	client     *http.Client

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrant creates a Qdrant-backed vector index. The collection is created
// on first use if it does not exist.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("qdrant endpoint is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "hypersearch"
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &Qdrant{
		endpoint:   endpoint,
		collection: cfg.Collection,
		dimension:  cfg.Dimensions,
		client:     cfg.Client,
	}, nil
}

// Name implements VectorIndex.
func (q *Qdrant) Name() string {
	return "qdrant"
}

func (q *Qdrant) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &qdrantStatusError{status: resp.Status, code: resp.StatusCode, body: string(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type qdrantStatusError struct {
	status string
	code   int
	body   string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant: %s %s", e.status, e.body)
}

// ensureCollection creates the collection if it doesn't exist.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	q.ensureOnce.Do(func() {
		path := "/collections/" + q.collection
		err := q.do(ctx, http.MethodGet, path, nil, nil)
		if err == nil {
			return
		}
		if se, ok := err.(*qdrantStatusError); !ok || se.code != http.StatusNotFound {
			q.ensureErr = err
			return
		}

		body := map[string]any{
			"vectors": map[string]any{
				"size":     q.dimension,
				"distance": "Cosine",
			},
		}
		if err := q.do(ctx, http.MethodPut, path, body, nil); err != nil {
			q.ensureErr = fmt.Errorf("failed to create collection: %w", err)
		}
	})
	return q.ensureErr
}

// pointID produces a deterministic uint64 for use as a Qdrant point ID.
func pointID(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

// Upsert implements VectorIndex.
func (q *Qdrant) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	points := make([]any, 0, len(records))
	for _, r := range records {
		if q.dimension > 0 && len(r.Embedding) != q.dimension {
			return ErrDimensionMismatch{Expected: q.dimension, Got: len(r.Embedding)}
		}
		payload := make(map[string]string, len(r.Document.Metadata)+4)
		for k, v := range r.Document.Metadata {
			payload[k] = v
		}
		payload[payloadID] = r.Document.ID
		payload[payloadTitle] = r.Document.Title
		payload[payloadContent] = r.Document.Content
		payload[payloadModality] = r.Document.Modality

		points = append(points, map[string]any{
			"id":      pointID(r.Document.ID),
			"vector":  r.Embedding,
			"payload": payload,
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	if err := q.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Search implements VectorIndex. Metadata filters become exact-match "must"
// clauses; modalities become one "match any" clause on the modality payload.
func (q *Qdrant) Search(ctx context.Context, vector []float32, k int, filter VectorFilter) ([]VectorHit, error) {
	if err := q.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if !filter.IsZero() {
		must := make([]any, 0, len(filter.Metadata)+1)
		for key, v := range filter.Metadata {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": v},
			})
		}
		if len(filter.Modalities) > 0 {
			must = append(must, map[string]any{
				"key":   payloadModality,
				"match": map[string]any{"any": filter.Modalities},
			})
		}
		body["filter"] = map[string]any{"must": must}
	}

	var result struct {
		Result []struct {
			ID      uint64            `json:"id"`
			Score   float32           `json:"score"`
			Payload map[string]string `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	hits := make([]VectorHit, 0, len(result.Result))
	for _, r := range result.Result {
		doc := Document{
			ID:       r.Payload[payloadID],
			Title:    r.Payload[payloadTitle],
			Content:  r.Payload[payloadContent],
			Modality: r.Payload[payloadModality],
			Metadata: make(map[string]string),
		}
		for key, v := range r.Payload {
			switch key {
			case payloadID, payloadTitle, payloadContent, payloadModality:
			default:
				doc.Metadata[key] = v
			}
		}
		score := r.Score
		if score < 0 {
			score = 0
		}
		hits = append(hits, VectorHit{Document: doc, Score: score})
	}
	return hits, nil
}

// Health implements VectorIndex.
func (q *Qdrant) Health(ctx context.Context) error {
	if err := q.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close implements VectorIndex.
func (q *Qdrant) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

var _ VectorIndex = (*Qdrant)(nil)
