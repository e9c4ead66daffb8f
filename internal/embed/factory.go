package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Provider identifies an embedding backend.
type Provider string

const (
	// ProviderOpenAI uses an OpenAI-compatible HTTP backend.
	ProviderOpenAI Provider = "openai"

	// ProviderStatic uses deterministic hash-based embeddings.
	ProviderStatic Provider = "static"
)

// ParseProvider converts a string to a Provider, defaulting to OpenAI.
func ParseProvider(s string) Provider {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderOpenAI
	}
}

// New creates an embedder for the provider and probes it. When the remote
// backend is unreachable at startup the static embedder is returned
// instead, so call sites never branch on availability; the semantic index
// simply carries the fallback model ID.
func New(ctx context.Context, provider Provider, cfg OpenAIConfig, cacheSize int) (Embedder, error) {
	var embedder Embedder

	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	case ProviderOpenAI:
		remote, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		if !remote.Available(ctx) {
			slog.Warn("embedding_backend_unreachable",
				slog.String("base_url", cfg.BaseURL),
				slog.String("fallback", "static"))
			_ = remote.Close()
			embedder = NewStaticEmbedder()
		} else {
			embedder = remote
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}

	return NewCachedEmbedder(embedder, cacheSize), nil
}
