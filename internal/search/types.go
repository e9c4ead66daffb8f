// Package search combines sparse BM25, dense semantic scoring, and
// cross-encoder reranking into one ranking via Reciprocal Rank Fusion.
package search

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects which retrieval signals participate in a query.
type Mode string

const (
	// ModeKeyword uses the sparse BM25 index only.
	ModeKeyword Mode = "keyword"

	// ModeSemantic uses the vector index only.
	ModeSemantic Mode = "semantic"

	// ModeHybrid fuses sparse and semantic signals without reranking.
	ModeHybrid Mode = "hybrid"

	// ModeFused fuses all signals including the cross-encoder reranker.
	ModeFused Mode = "fused"
)

// Retriever source names recorded on results.
const (
	SourceSparse   = "sparse"
	SourceSemantic = "semantic"
	SourceRerank   = "rerank"
)

// Programmer errors: the only errors Search raises. Everything else
// degrades to a successful (possibly partial) result.
var (
	ErrInvalidMode  = errors.New("invalid search mode")
	ErrInvalidLimit = errors.New("invalid search limit")
)

// ErrRerankUnavailable indicates the rerank backend is unreachable; the
// facade degrades to the unreranked fused ranking.
var ErrRerankUnavailable = errors.New("rerank backend unavailable")

// ValidMode reports whether m is one of the four search modes.
func ValidMode(m Mode) bool {
	switch m {
	case ModeKeyword, ModeSemantic, ModeHybrid, ModeFused:
		return true
	}
	return false
}

// RankedEntry is one retriever's placement of a document for a query.
type RankedEntry struct {
	DocID int64
	Rank  int // 1-based
	Score float64
}

// FusedResult is the fusion engine's per-document output.
type FusedResult struct {
	DocID         int64
	Scores        map[string]float64 // Raw per-retriever scores
	Ranks         map[string]int     // 1-based per-retriever ranks
	RRFScore      float64
	RerankScore   float64 // Sigmoid-normalized, 0 when not reranked
	CombinedScore float64
	FinalRank     int      // 1-based
	Sources       []string // Contributing retrievers, sorted
}

// ScoredDocument is the canonical result value returned by the facade and
// threaded through all components.
type ScoredDocument struct {
	ID            int64
	Title         string
	Snippet       string
	SparseScore   float64
	SemanticScore float64
	RerankScore   float64
	Score         float64
	Sources       []string
}

// EngineConfig configures the search facade.
type EngineConfig struct {
	// DefaultLimit is used when the caller passes limit 0 (default: 10).
	DefaultLimit int

	// MaxLimit caps the requested limit (default: 100).
	MaxLimit int

	// RerankTopK is how many fused candidates the reranker rescores;
	// the rest are dropped from reranked output (default: 20).
	RerankTopK int

	// EmbedTimeout bounds the query embedding call (default: 10s).
	EmbedTimeout time.Duration

	// RerankTimeout bounds the rerank call (default: 30s).
	RerankTimeout time.Duration

	// Fusion holds RRF constants and retriever weights.
	Fusion FusionConfig
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:  10,
		MaxLimit:      100,
		RerankTopK:    20,
		EmbedTimeout:  10 * time.Second,
		RerankTimeout: 30 * time.Second,
		Fusion:        DefaultFusionConfig(),
	}
}

func (c EngineConfig) validate() error {
	if err := c.Fusion.Validate(); err != nil {
		return err
	}
	if c.RerankTopK < 0 {
		return fmt.Errorf("rerank top k must be >= 0, got %d", c.RerankTopK)
	}
	return nil
}

// snippetLen caps the body excerpt shown on results.
const snippetLen = 200

// Snippet returns summary when set, otherwise a bounded body excerpt.
func Snippet(summary, body string) string {
	if summary != "" {
		return summary
	}
	if len(body) > snippetLen {
		return body[:snippetLen]
	}
	return body
}
