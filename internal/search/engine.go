package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recallhq/recall/internal/embed"
	"github.com/recallhq/recall/internal/store"
)

// Engine is the search facade. It owns mode dispatch, query sanitization,
// parallel retrieval, fusion, reranking, and hydration, and degrades to
// whatever signals are currently serving rather than failing queries.
type Engine struct {
	sparse   store.SparseIndex
	vector   *store.VectorIndex
	embedder embed.Embedder
	docs     store.DocumentStore
	reranker Reranker
	config   EngineConfig
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithReranker sets an optional cross-encoder reranker. Without one the
// fused mode returns the unreranked fused ranking.
func WithReranker(r Reranker) EngineOption {
	return func(e *Engine) {
		e.reranker = r
	}
}

// NewEngine creates a search engine over the given indexes and stores.
// Returns an error if any required dependency is nil or the config is
// invalid.
func NewEngine(
	sparse store.SparseIndex,
	vector *store.VectorIndex,
	embedder embed.Embedder,
	docs store.DocumentStore,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if sparse == nil {
		return nil, fmt.Errorf("%w: sparse index is required", ErrNilDependency)
	}
	if vector == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if docs == nil {
		return nil, fmt.Errorf("%w: document store is required", ErrNilDependency)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		sparse:   sparse,
		vector:   vector,
		embedder: embedder,
		docs:     docs,
		reranker: NoopReranker{},
		config:   config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search runs a query in the given mode and returns up to limit hydrated
// results. A zero limit uses the configured default; limits above the
// configured maximum are capped. Only an invalid mode, a negative limit,
// or context cancellation produce errors; unavailable backends degrade
// the result set instead.
func (e *Engine) Search(ctx context.Context, query string, mode Mode, limit int) ([]*ScoredDocument, error) {
	start := time.Now()

	if !ValidMode(mode) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit == 0 {
		limit = e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		limit = e.config.MaxLimit
	}

	raw := strings.TrimSpace(query)
	sanitized := SanitizeQuery(raw)

	// Without a serving vector backend every mode is keyword retrieval.
	vectorOK := e.vectorAvailable(ctx)
	effective := mode
	if !vectorOK && mode != ModeKeyword {
		slog.Debug("semantic_signal_unavailable, degrading to keyword",
			slog.String("mode", string(mode)))
		effective = ModeKeyword
	}

	var results []*FusedResult
	var err error
	switch effective {
	case ModeKeyword:
		results, err = e.keywordSearch(ctx, sanitized, limit)
	case ModeSemantic:
		results, err = e.semanticSearch(ctx, raw, limit)
	case ModeHybrid:
		results, err = e.hybridSearch(ctx, raw, sanitized, limit)
	case ModeFused:
		results, err = e.fusedSearch(ctx, raw, sanitized, limit)
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if len(results) > limit {
		results = results[:limit]
	}

	hydrated, err := e.hydrate(ctx, results)
	if err != nil {
		return nil, err
	}

	slog.Debug("search_complete",
		slog.String("mode", string(mode)),
		slog.String("effective_mode", string(effective)),
		slog.Int("results", len(hydrated)),
		slog.Duration("elapsed", time.Since(start)))

	return hydrated, nil
}

// vectorAvailable reports whether the semantic signal can serve: the
// embedder must be reachable and the vector index populated for its model.
func (e *Engine) vectorAvailable(ctx context.Context) bool {
	if !e.embedder.Available(ctx) {
		return false
	}
	return e.vector.Count(e.embedder.ModelName()) > 0
}

func (e *Engine) keywordSearch(ctx context.Context, sanitized string, limit int) ([]*FusedResult, error) {
	if sanitized == "" {
		return nil, nil
	}
	entries, err := e.sparseEntries(ctx, sanitized, limit)
	if err != nil {
		if errors.Is(err, store.ErrIndexUnavailable) {
			slog.Warn("sparse_index_unavailable", slog.String("error", err.Error()))
			return nil, nil
		}
		return nil, err
	}
	return Fuse(e.config.Fusion, map[string][]RankedEntry{SourceSparse: entries}), nil
}

func (e *Engine) semanticSearch(ctx context.Context, raw string, limit int) ([]*FusedResult, error) {
	if raw == "" {
		return nil, nil
	}
	entries, err := e.semanticEntries(ctx, raw, limit)
	if err != nil {
		if errors.Is(err, embed.ErrEmbeddingUnavailable) {
			slog.Warn("embedding_unavailable", slog.String("error", err.Error()))
			return nil, nil
		}
		return nil, err
	}
	return Fuse(e.config.Fusion, map[string][]RankedEntry{SourceSemantic: entries}), nil
}

func (e *Engine) hybridSearch(ctx context.Context, raw, sanitized string, limit int) ([]*FusedResult, error) {
	// A query reduced to nothing by sanitization still carries meaning
	// for the embedder, so hybrid falls back to the semantic signal alone.
	if sanitized == "" {
		return e.semanticSearch(ctx, raw, limit)
	}

	lists, err := e.parallelRetrieve(ctx, raw, sanitized, limit)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, nil
	}
	return Fuse(e.config.Fusion, lists), nil
}

func (e *Engine) fusedSearch(ctx context.Context, raw, sanitized string, limit int) ([]*FusedResult, error) {
	if sanitized == "" {
		return nil, nil
	}

	lists, err := e.parallelRetrieve(ctx, raw, sanitized, limit)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, nil
	}
	fused := Fuse(e.config.Fusion, lists)

	return e.rerank(ctx, raw, fused), nil
}

// parallelRetrieve runs sparse and semantic retrieval concurrently,
// over-fetching so fusion has enough candidates. A retriever that cannot
// serve drops out of the returned lists rather than failing the query.
func (e *Engine) parallelRetrieve(ctx context.Context, raw, sanitized string, limit int) (map[string][]RankedEntry, error) {
	var sparseEntries, semanticEntries []RankedEntry

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := e.sparseEntries(gctx, sanitized, limit)
		if err != nil {
			if errors.Is(err, store.ErrIndexUnavailable) {
				slog.Warn("sparse_index_unavailable", slog.String("error", err.Error()))
				return nil
			}
			return err
		}
		sparseEntries = entries
		return nil
	})

	g.Go(func() error {
		entries, err := e.semanticEntries(gctx, raw, limit)
		if err != nil {
			if errors.Is(err, embed.ErrEmbeddingUnavailable) {
				slog.Warn("embedding_unavailable", slog.String("error", err.Error()))
				return nil
			}
			return err
		}
		semanticEntries = entries
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	lists := make(map[string][]RankedEntry, 2)
	if len(sparseEntries) > 0 {
		lists[SourceSparse] = sparseEntries
	}
	if len(semanticEntries) > 0 {
		lists[SourceSemantic] = semanticEntries
	}
	return lists, nil
}

func (e *Engine) sparseEntries(ctx context.Context, sanitized string, limit int) ([]RankedEntry, error) {
	hits, err := e.sparse.Search(ctx, sanitized, limit*2)
	if err != nil {
		return nil, err
	}
	entries := make([]RankedEntry, len(hits))
	for i, h := range hits {
		entries[i] = RankedEntry{DocID: h.DocID, Rank: i + 1, Score: h.Score}
	}
	return entries, nil
}

func (e *Engine) semanticEntries(ctx context.Context, raw string, limit int) ([]RankedEntry, error) {
	embedCtx, cancel := context.WithTimeout(ctx, e.config.EmbedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(embedCtx, raw)
	if err != nil {
		return nil, err
	}

	hits, err := e.vector.Search(ctx, e.embedder.ModelName(), vec, limit*2)
	if err != nil {
		return nil, err
	}
	entries := make([]RankedEntry, len(hits))
	for i, h := range hits {
		entries[i] = RankedEntry{DocID: h.DocID, Rank: i + 1, Score: h.Score}
	}
	return entries, nil
}

// rerank rescores the top fused candidates with the cross encoder and
// blends the scores in. When the backend cannot serve, the fused ranking
// passes through untouched.
func (e *Engine) rerank(ctx context.Context, query string, fused []*FusedResult) []*FusedResult {
	if len(fused) == 0 || e.config.RerankTopK == 0 {
		return fused
	}
	if !e.reranker.Available(ctx) {
		slog.Debug("reranker_unavailable, returning fused ranking")
		return fused
	}

	top := fused
	if len(top) > e.config.RerankTopK {
		top = top[:e.config.RerankTopK]
	}

	cands := make([]RerankCandidate, 0, len(top))
	for _, fr := range top {
		doc, err := e.docs.Get(ctx, fr.DocID)
		if err != nil {
			continue
		}
		cands = append(cands, RerankCandidate{DocID: fr.DocID, Text: RerankText(doc)})
	}
	if len(cands) == 0 {
		return fused
	}

	rerankCtx, cancel := context.WithTimeout(ctx, e.config.RerankTimeout)
	defer cancel()

	scored, err := e.reranker.Rerank(rerankCtx, query, cands)
	if err != nil {
		slog.Warn("rerank_failed, returning fused ranking",
			slog.String("error", err.Error()))
		return fused
	}

	scores := make(map[int64]float64, len(scored))
	for _, rr := range scored {
		scores[rr.DocID] = rr.Score
	}
	return ApplyRerank(e.config.Fusion, fused, scores)
}

// hydrate resolves fused results into full documents. Documents deleted
// since retrieval are skipped.
func (e *Engine) hydrate(ctx context.Context, results []*FusedResult) ([]*ScoredDocument, error) {
	out := make([]*ScoredDocument, 0, len(results))
	for _, fr := range results {
		doc, err := e.docs.Get(ctx, fr.DocID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("hydrate doc %d: %w", fr.DocID, err)
		}
		out = append(out, &ScoredDocument{
			ID:            doc.ID,
			Title:         doc.Title,
			Snippet:       Snippet(doc.Summary, doc.Body),
			SparseScore:   fr.Scores[SourceSparse],
			SemanticScore: fr.Scores[SourceSemantic],
			RerankScore:   fr.RerankScore,
			Score:         fr.CombinedScore,
			Sources:       fr.Sources,
		})
	}
	return out, nil
}
