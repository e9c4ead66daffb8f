package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// OpenAIConfig configures the OpenAI-compatible embedding backend. Any
// server speaking the /v1/embeddings protocol works (OpenAI, Ollama,
// LM Studio, vLLM).
type OpenAIConfig struct {
	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string

	// APIKey authenticates requests. Local servers usually ignore it.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the expected embedding dimension.
	Dimensions int

	// Timeout bounds each request (default: 10s).
	Timeout time.Duration
}

// DefaultOpenAIConfig returns defaults for a local OpenAI-compatible server.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:    "http://localhost:11434/v1",
		Model:      "nomic-embed-text",
		Dimensions: 768,
		Timeout:    DefaultTimeout,
	}
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. A circuit
// breaker sits in front of the backend so a dead server fails fast and the
// query path degrades to keyword search instead of stacking up timeouts.
type OpenAIEmbedder struct {
	client  *openai.Client
	config  OpenAIConfig
	breaker *gobreaker.CircuitBreaker
	mu      sync.RWMutex
	closed  bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for the given backend.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", cfg.Dimensions)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embedder",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("embedder_breaker_state_change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		breaker: breaker,
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
// Backend failures are reported as ErrEmbeddingUnavailable so callers skip
// the semantic signal.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	res, err := e.breaker.Execute(func() (interface{}, error) {
		return e.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(e.config.Model),
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	resp := res.(openai.EmbeddingResponse)
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d",
			ErrEmbeddingUnavailable, len(texts), len(resp.Data))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingUnavailable, d.Index)
		}
		if len(d.Embedding) != e.config.Dimensions {
			return nil, fmt.Errorf("dimension mismatch: expected %d, got %d",
				e.config.Dimensions, len(d.Embedding))
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }

// Available probes the backend with a short model listing request.
// An open breaker reports unavailable without touching the network.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	if e.breaker.State() == gobreaker.StateOpen {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := e.client.ListModels(probeCtx)
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
