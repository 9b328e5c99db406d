package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hypersearch/internal/errors"
)

// fakeOllama answers /api/embed with dims-sized vectors.
func fakeOllama(t *testing.T, dims int, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/embed":
			n := calls.Add(1)
			if n <= failFirst {
				http.Error(w, "loading", http.StatusServiceUnavailable)
				return
			}
			var req ollamaEmbedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			resp := ollamaEmbedResponse{Model: req.Model}
			for i := range req.Input {
				vec := make([]float64, dims)
				vec[i%dims] = 1
				resp.Embeddings = append(resp.Embeddings, vec)
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOllamaEmbedder_DetectsDimensions(t *testing.T) {
	srv, _ := fakeOllama(t, 6, 0)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, 6, e.Dimensions())
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_BatchesRequests(t *testing.T) {
	// Given: batch size 2 and five texts
	srv, calls := fakeOllama(t, 4, 0)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, BatchSize: 2})
	require.NoError(t, err)

	// When: embedding them
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})

	// Then: three requests, five vectors, in order
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, float32(1), vecs[1][1])
}

func TestOllamaEmbedder_RetriesServerErrors(t *testing.T) {
	srv, calls := fakeOllama(t, 4, 1)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, MaxRetries: 2})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "x")

	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaEmbedder_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 4, MaxRetries: 3})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	assert.Equal(t, errors.ErrCodeEmbedderUnavailable, errors.GetCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestOllamaEmbedder_Unreachable(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: "http://127.0.0.1:1", MaxRetries: 0})
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Config{Provider: "static", Dimensions: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimensions())

	srv, _ := fakeOllama(t, 12, 0)
	e, err = NewEmbedder(context.Background(), Config{Provider: "OLLAMA", OllamaHost: srv.URL, Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.Equal(t, 12, e.Dimensions())

	_, err = NewEmbedder(context.Background(), Config{Provider: "mlx"})
	assert.Error(t, err)
}
