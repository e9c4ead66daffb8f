// Package embed provides text embedding backends behind a single Embedder
// interface: a remote OpenAI-compatible backend and a deterministic static
// fallback, with optional LRU caching.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrEmbeddingUnavailable indicates the embedding backend is unreachable.
// Callers treat it as "skip the semantic signal", never as a fatal query
// error.
var ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

const (
	// DefaultTimeout bounds a single embedding request.
	DefaultTimeout = 10 * time.Second

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32
)

// Embedder generates vector embeddings for text. Implementations are
// deterministic for a given model and input.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the backend is reachable and ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales a vector to unit length. Zero vectors are returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	mag := math.Sqrt(sumSquares)
	if mag == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / mag)
	}
	return out
}
