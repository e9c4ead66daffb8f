package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/embed"
	"github.com/recallhq/recall/internal/store"
)

// flakyEmbedder wraps an embedder with a switchable availability flag.
type flakyEmbedder struct {
	embed.Embedder
	available bool
}

func (f *flakyEmbedder) Available(context.Context) bool { return f.available }

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if !f.available {
		return nil, embed.ErrEmbeddingUnavailable
	}
	return f.Embedder.Embed(ctx, text)
}

// stubReranker returns fixed scores for a configured set of documents.
type stubReranker struct {
	scores map[int64]float64
	calls  int
}

func (s *stubReranker) Rerank(_ context.Context, _ string, candidates []RerankCandidate) ([]RerankResult, error) {
	s.calls++
	var out []RerankResult
	for _, c := range candidates {
		if score, ok := s.scores[c.DocID]; ok {
			out = append(out, RerankResult{DocID: c.DocID, Score: score})
		}
	}
	return out, nil
}

func (s *stubReranker) Available(context.Context) bool { return true }
func (s *stubReranker) Close() error                   { return nil }

type engineFixture struct {
	engine   *Engine
	docs     *store.SQLiteStore
	embedder *flakyEmbedder
}

// newEngineFixture stores the documents, builds both indexes, and embeds
// every document with the deterministic static embedder.
func newEngineFixture(t *testing.T, documents []*store.Document, opts ...EngineOption) *engineFixture {
	t.Helper()
	ctx := context.Background()

	docs, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	for _, d := range documents {
		require.NoError(t, docs.Put(ctx, d))
	}

	sparse := store.NewMemoryBM25Index(store.DefaultSparseConfig())
	require.NoError(t, sparse.Rebuild(ctx, documents))
	t.Cleanup(func() { _ = sparse.Close() })

	embedder := &flakyEmbedder{Embedder: embed.NewStaticEmbedder(), available: true}

	vector, err := store.NewVectorIndex(embedder.Dimensions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	for _, d := range documents {
		vec, err := embedder.Embedder.Embed(ctx, store.EmbeddingText(d))
		require.NoError(t, err)
		require.NoError(t, vector.Upsert(ctx, store.EmbeddingRecord{
			DocID:   d.ID,
			ModelID: embedder.ModelName(),
			Vector:  vec,
		}))
	}

	engine, err := NewEngine(sparse, vector, embedder, docs, DefaultEngineConfig(), opts...)
	require.NoError(t, err)

	return &engineFixture{engine: engine, docs: docs, embedder: embedder}
}

func testCorpus() []*store.Document {
	return []*store.Document{
		{ID: 1, Title: "Deploy runbook", Summary: "How we deploy", Body: "deploy the service with the rollout script", Tags: []string{"ops"}},
		{ID: 2, Title: "Incident review", Summary: "Sev1 writeup", Body: "the deploy caused an outage last week", Tags: []string{"incident"}},
		{ID: 3, Title: "Recipe book", Summary: "Banana bread", Body: "mash bananas and bake for an hour", Tags: []string{"cooking"}},
	}
}

func TestEngine_InvalidModeAndLimit(t *testing.T) {
	f := newEngineFixture(t, testCorpus())
	ctx := context.Background()

	_, err := f.engine.Search(ctx, "deploy", Mode("turbo"), 10)
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = f.engine.Search(ctx, "deploy", ModeKeyword, -1)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestEngine_KeywordMode(t *testing.T) {
	f := newEngineFixture(t, testCorpus())

	results, err := f.engine.Search(context.Background(), "deploy", ModeKeyword, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		assert.Equal(t, []string{SourceSparse}, r.Sources)
		assert.NotEqual(t, int64(3), r.ID)
		assert.NotEmpty(t, r.Snippet)
	}
}

func TestEngine_KeywordEmptyQuery(t *testing.T) {
	f := newEngineFixture(t, testCorpus())

	for _, q := range []string{"", "   ", "+++:::"} {
		results, err := f.engine.Search(context.Background(), q, ModeKeyword, 10)
		require.NoError(t, err)
		assert.Empty(t, results, "query %q", q)
	}
}

func TestEngine_SemanticMode(t *testing.T) {
	docs := testCorpus()
	f := newEngineFixture(t, docs)

	// Querying with a document's own embedding text ranks it first.
	results, err := f.engine.Search(context.Background(), store.EmbeddingText(docs[2]), ModeSemantic, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(3), results[0].ID)
	assert.Equal(t, []string{SourceSemantic}, results[0].Sources)
}

func TestEngine_HybridCombinesSignals(t *testing.T) {
	f := newEngineFixture(t, testCorpus())

	results, err := f.engine.Search(context.Background(), "deploy outage", ModeHybrid, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// At least one result carries the sparse signal.
	var sawSparse bool
	for _, r := range results {
		for _, src := range r.Sources {
			if src == SourceSparse {
				sawSparse = true
			}
		}
	}
	assert.True(t, sawSparse)
}

func TestEngine_HybridEmptyQueryFallsBackToSemantic(t *testing.T) {
	// A query stripped to nothing by sanitization still runs the
	// semantic signal in hybrid mode.
	f := newEngineFixture(t, testCorpus())

	results, err := f.engine.Search(context.Background(), "+++", ModeHybrid, 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, []string{SourceSemantic}, r.Sources)
	}
}

func TestEngine_FusedEmptyQueryIsEmpty(t *testing.T) {
	f := newEngineFixture(t, testCorpus())

	results, err := f.engine.Search(context.Background(), "+++", ModeFused, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEngine_FusedWithoutRerankerEqualsHybrid(t *testing.T) {
	// Reranker unavailable: fused output order equals hybrid output order.
	f := newEngineFixture(t, testCorpus())
	ctx := context.Background()

	hybrid, err := f.engine.Search(ctx, "deploy outage", ModeHybrid, 10)
	require.NoError(t, err)
	fused, err := f.engine.Search(ctx, "deploy outage", ModeFused, 10)
	require.NoError(t, err)

	require.Equal(t, len(hybrid), len(fused))
	for i := range hybrid {
		assert.Equal(t, hybrid[i].ID, fused[i].ID)
		assert.Equal(t, hybrid[i].Score, fused[i].Score)
	}
}

func TestEngine_FusedAppliesReranker(t *testing.T) {
	// Doc 3 is irrelevant to the query but gets a dominant rerank score.
	reranker := &stubReranker{scores: map[int64]float64{1: 0.1, 2: 0.2, 3: 0.99}}
	f := newEngineFixture(t, testCorpus(), WithReranker(reranker))

	results, err := f.engine.Search(context.Background(), "deploy outage bananas", ModeFused, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 1, reranker.calls)

	for _, r := range results {
		assert.Contains(t, r.Sources, SourceRerank)
		assert.NotZero(t, r.RerankScore)
	}
}

func TestEngine_RerankFailurePassesThrough(t *testing.T) {
	f := newEngineFixture(t, testCorpus(), WithReranker(NoopReranker{}))
	ctx := context.Background()

	hybrid, err := f.engine.Search(ctx, "deploy", ModeHybrid, 10)
	require.NoError(t, err)
	fused, err := f.engine.Search(ctx, "deploy", ModeFused, 10)
	require.NoError(t, err)

	require.Equal(t, len(hybrid), len(fused))
	for i := range hybrid {
		assert.Equal(t, hybrid[i].ID, fused[i].ID)
	}
}

func TestEngine_DegradesToKeywordWhenEmbedderDown(t *testing.T) {
	f := newEngineFixture(t, testCorpus())
	f.embedder.available = false
	ctx := context.Background()

	keyword, err := f.engine.Search(ctx, "deploy", ModeKeyword, 10)
	require.NoError(t, err)
	require.NotEmpty(t, keyword)

	for _, mode := range []Mode{ModeSemantic, ModeHybrid, ModeFused} {
		degraded, err := f.engine.Search(ctx, "deploy", mode, 10)
		require.NoError(t, err, "mode %s", mode)
		require.Equal(t, len(keyword), len(degraded), "mode %s", mode)
		for i := range keyword {
			assert.Equal(t, keyword[i].ID, degraded[i].ID, "mode %s", mode)
		}
	}
}

func TestEngine_EmptyCorpusAllModes(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	for _, mode := range []Mode{ModeKeyword, ModeSemantic, ModeHybrid, ModeFused} {
		results, err := f.engine.Search(ctx, "anything", mode, 10)
		require.NoError(t, err, "mode %s", mode)
		assert.Empty(t, results, "mode %s", mode)
	}
}

func TestEngine_HydrationSkipsDeleted(t *testing.T) {
	f := newEngineFixture(t, testCorpus())
	ctx := context.Background()

	// Delete between indexing and hydration.
	require.NoError(t, f.docs.Delete(ctx, 1))

	results, err := f.engine.Search(ctx, "deploy", ModeKeyword, 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, int64(1), r.ID)
	}
}

func TestEngine_LimitDefaultsAndCaps(t *testing.T) {
	var docs []*store.Document
	for i := int64(1); i <= 30; i++ {
		docs = append(docs, &store.Document{ID: i, Body: "common term filler"})
	}
	f := newEngineFixture(t, docs)
	ctx := context.Background()

	results, err := f.engine.Search(ctx, "common", ModeKeyword, 0)
	require.NoError(t, err)
	assert.Len(t, results, 10) // DefaultLimit

	results, err = f.engine.Search(ctx, "common", ModeKeyword, 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestEngine_CancelledContext(t *testing.T) {
	f := newEngineFixture(t, testCorpus())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Search(ctx, "deploy", ModeKeyword, 10)
	assert.Error(t, err)
}

func TestNewEngine_NilDependencies(t *testing.T) {
	f := newEngineFixture(t, nil)

	_, err := NewEngine(nil, nil, nil, nil, DefaultEngineConfig())
	assert.ErrorIs(t, err, ErrNilDependency)
	_ = f
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "summary", Snippet("summary", "body"))
	assert.Equal(t, "short body", Snippet("", "short body"))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, Snippet("", string(long)), snippetLen)
}
