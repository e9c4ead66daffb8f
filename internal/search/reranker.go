package search

import (
	"context"
	"math"
	"strings"

	"github.com/recallhq/recall/internal/store"
)

// rerankExcerptLen bounds the body text sent to the cross encoder.
const rerankExcerptLen = 500

// RerankCandidate pairs a document ID with the compact text the cross
// encoder scores against the query.
type RerankCandidate struct {
	DocID int64
	Text  string
}

// RerankResult is one scored candidate. Score is sigmoid-normalized
// into (0, 1).
type RerankResult struct {
	DocID int64
	Score float64
}

// Reranker rescores query/document pairs with a cross encoder.
type Reranker interface {
	// Rerank scores each candidate against the query. Returns
	// ErrRerankUnavailable when the backend cannot serve.
	Rerank(ctx context.Context, query string, candidates []RerankCandidate) ([]RerankResult, error)

	// Available reports whether the backend can currently serve.
	Available(ctx context.Context) bool

	Close() error
}

// RerankText builds the compact document representation the cross
// encoder sees: title, summary, a bounded body excerpt, and tags.
func RerankText(doc *store.Document) string {
	body := doc.Body
	if len(body) > rerankExcerptLen {
		body = body[:rerankExcerptLen]
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{doc.Title, doc.Summary, body, strings.Join(doc.Tags, " ")} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}

// sigmoid maps a raw cross-encoder logit into (0, 1).
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// NoopReranker reports unavailable and never scores. Used when no
// rerank backend is configured.
type NoopReranker struct{}

var _ Reranker = (*NoopReranker)(nil)

func (NoopReranker) Rerank(context.Context, string, []RerankCandidate) ([]RerankResult, error) {
	return nil, ErrRerankUnavailable
}

func (NoopReranker) Available(context.Context) bool { return false }

func (NoopReranker) Close() error { return nil }
