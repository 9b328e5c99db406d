package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings. Always available.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"
)

// Config selects and configures an embedder.
type Config struct {
	Provider   string
	Model      string
	OllamaHost string
	Dimensions int
	BatchSize  int
	CacheSize  int
}

// ParseProvider parses a provider name case-insensitively.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderStatic, ProviderOllama:
		return p, nil
	case "":
		return ProviderStatic, nil
	default:
		return "", fmt.Errorf("unknown embeddings provider %q (use static or ollama)", s)
	}
}

// NewEmbedder builds the configured embedder wrapped in an LRU cache.
// An explicitly requested Ollama that cannot be reached is an error, never a
// silent fallback: vectors from different models are not comparable.
func NewEmbedder(ctx context.Context, cfg Config) (*CachedEmbedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var inner Embedder
	switch provider {
	case ProviderOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			MaxRetries: 2,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
		}
	default:
		inner = NewStaticEmbedder(cfg.Dimensions)
	}

	slog.Info("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
