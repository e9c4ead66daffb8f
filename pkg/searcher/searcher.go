// Package searcher is the public entry point: it wires the document
// store, sparse and vector indexes, embedder, and reranker into one
// multi-signal retrieval service.
package searcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recallhq/recall/internal/async"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/embed"
	"github.com/recallhq/recall/internal/search"
	"github.com/recallhq/recall/internal/store"
)

// Mode re-exports the search modes for callers.
type Mode = search.Mode

const (
	ModeKeyword  = search.ModeKeyword
	ModeSemantic = search.ModeSemantic
	ModeHybrid   = search.ModeHybrid
	ModeFused    = search.ModeFused
)

// Document is the stored item callers index and retrieve.
type Document = store.Document

// Result is one scored search hit.
type Result = search.ScoredDocument

// Searcher owns the full retrieval stack for one database.
type Searcher struct {
	cfg      *config.Config
	docs     *store.SQLiteStore
	sparse   store.SparseIndex
	vector   *store.VectorIndex
	embedder embed.Embedder
	reranker search.Reranker
	engine   *search.Engine
	reembed  *async.Reembedder
}

// Open builds the retrieval stack from configuration: storage, indexes,
// the probed embedding backend, the optional reranker, and the async
// re-embed worker. The sparse index starts empty; call RebuildIndexes
// after opening an existing database.
func Open(ctx context.Context, cfg *config.Config) (*Searcher, error) {
	docs, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	sparseCfg := store.DefaultSparseConfig()
	sparseCfg.K1 = cfg.Search.K1
	sparseCfg.B = cfg.Search.B
	sparseCfg.MinScore = cfg.Search.MinScore

	sparse, err := store.NewSparseIndex(cfg.Search.SparseBackend, sparseCfg)
	if err != nil {
		_ = docs.Close()
		return nil, fmt.Errorf("create sparse index: %w", err)
	}

	embedder, err := embed.New(ctx, embed.ParseProvider(cfg.Embeddings.Provider), embed.OpenAIConfig{
		BaseURL:    cfg.Embeddings.Endpoint,
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		Timeout:    cfg.Embeddings.Timeout,
	}, cfg.Embeddings.CacheSize)
	if err != nil {
		_ = sparse.Close()
		_ = docs.Close()
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	vector, err := store.NewVectorIndex(embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		_ = sparse.Close()
		_ = docs.Close()
		return nil, fmt.Errorf("create vector index: %w", err)
	}

	var reranker search.Reranker = search.NoopReranker{}
	if cfg.Reranker.Enabled {
		hr, err := search.NewHTTPReranker(ctx, search.HTTPRerankerConfig{
			Endpoint: cfg.Reranker.Endpoint,
			Model:    cfg.Reranker.Model,
			Timeout:  cfg.Reranker.Timeout,
		})
		if err != nil {
			slog.Warn("reranker unreachable, fused mode will skip reranking",
				slog.String("error", err.Error()))
		} else {
			reranker = hr
		}
	}

	engineCfg := search.DefaultEngineConfig()
	engineCfg.DefaultLimit = cfg.Search.DefaultLimit
	engineCfg.MaxLimit = cfg.Search.MaxLimit
	engineCfg.RerankTopK = cfg.Search.RerankTopK
	engineCfg.EmbedTimeout = cfg.Embeddings.Timeout
	engineCfg.RerankTimeout = cfg.Reranker.Timeout
	engineCfg.Fusion = search.FusionConfig{
		K: cfg.Search.RRFConstant,
		Weights: map[string]float64{
			search.SourceSparse:   cfg.Search.SparseWeight,
			search.SourceSemantic: cfg.Search.SemanticWeight,
		},
		RerankWeight: cfg.Search.RerankWeight,
	}

	engine, err := search.NewEngine(sparse, vector, embedder, docs, engineCfg,
		search.WithReranker(reranker))
	if err != nil {
		_ = reranker.Close()
		_ = embedder.Close()
		_ = sparse.Close()
		_ = docs.Close()
		return nil, err
	}

	reembed, err := async.NewReembedder(docs, docs, vector, embedder)
	if err != nil {
		_ = reranker.Close()
		_ = embedder.Close()
		_ = sparse.Close()
		_ = docs.Close()
		return nil, fmt.Errorf("create reembedder: %w", err)
	}

	return &Searcher{
		cfg:      cfg,
		docs:     docs,
		sparse:   sparse,
		vector:   vector,
		embedder: embedder,
		reranker: reranker,
		engine:   engine,
		reembed:  reembed,
	}, nil
}

// Put inserts or replaces a document. Embedding happens asynchronously;
// the sparse index picks the change up on the next RebuildIndexes.
func (s *Searcher) Put(ctx context.Context, doc *Document) error {
	return s.docs.Put(ctx, doc)
}

// Delete removes a document and, asynchronously, its embeddings.
func (s *Searcher) Delete(ctx context.Context, id int64) error {
	return s.docs.Delete(ctx, id)
}

// Get returns a stored document.
func (s *Searcher) Get(ctx context.Context, id int64) (*Document, error) {
	return s.docs.Get(ctx, id)
}

// RebuildIndexes rebuilds the sparse index from the full corpus and
// reloads persisted embeddings into the vector index. Queries keep
// serving the old sparse snapshot until the swap.
func (s *Searcher) RebuildIndexes(ctx context.Context) error {
	docs, err := s.docs.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if err := s.sparse.Rebuild(ctx, docs); err != nil {
		return fmt.Errorf("rebuild sparse index: %w", err)
	}

	recs, err := s.docs.ListEmbeddings(ctx, s.embedder.ModelName())
	if err != nil {
		return fmt.Errorf("list embeddings: %w", err)
	}
	for _, rec := range recs {
		if err := s.vector.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("load embedding for doc %d: %w", rec.DocID, err)
		}
	}

	slog.Info("indexes_rebuilt",
		slog.Int("documents", len(docs)),
		slog.Int("embeddings", len(recs)))
	return nil
}

// Search runs a query. See search.Engine.Search for mode and limit
// semantics.
func (s *Searcher) Search(ctx context.Context, query string, mode Mode, limit int) ([]*Result, error) {
	return s.engine.Search(ctx, query, mode, limit)
}

// SparseStats exposes the sparse index statistics.
func (s *Searcher) SparseStats() store.SparseStats {
	return s.sparse.Stats()
}

// WaitForEmbeddings blocks until queued re-embedding work finishes.
// Intended for indexing flows and tests.
func (s *Searcher) WaitForEmbeddings() {
	s.reembed.Wait()
}

// Close drains async work and releases every component.
func (s *Searcher) Close() error {
	var firstErr error
	for _, c := range []func() error{
		s.reembed.Close,
		s.reranker.Close,
		s.embedder.Close,
		s.vector.Close,
		s.sparse.Close,
		s.docs.Close,
	} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
