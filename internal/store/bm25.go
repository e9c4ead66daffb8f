package store

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryBM25Index is the default sparse backend. It scores with the exact
// BM25 formulation used across the pipeline:
//
//	score(d,q) = Σ_t IDF(t) · tf · (k1+1) / (tf + k1·(1−b+b·|d|/avgdl))
//	IDF(t)     = ln(1 + (N−df+0.5)/(df+0.5))
//
// Rebuild constructs a complete new snapshot and swaps it under the lock, so
// concurrent readers observe old-or-new, never a half-built corpus.
type MemoryBM25Index struct {
	mu        sync.RWMutex
	snap      *bm25Snapshot
	config    SparseConfig
	stopWords map[string]struct{}
	closed    bool
}

// bm25Snapshot is an immutable indexed corpus. All fields are read-only
// after construction.
type bm25Snapshot struct {
	docs     map[int64]*bm25Doc
	postings map[string][]int64 // term -> doc IDs containing it (ascending)
	df       map[string]int
	avgdl    float64
	n        int
}

type bm25Doc struct {
	tf     map[string]int
	length int
}

// Verify interface implementation at compile time.
var _ SparseIndex = (*MemoryBM25Index)(nil)

// NewMemoryBM25Index creates an empty in-memory BM25 index.
func NewMemoryBM25Index(config SparseConfig) *MemoryBM25Index {
	if config.K1 == 0 {
		config.K1 = 1.2
	}
	if config.B == 0 {
		config.B = 0.75
	}
	return &MemoryBM25Index{
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}
}

// Rebuild tokenizes the documents, computes term frequencies and corpus
// statistics, and atomically replaces the current snapshot.
func (m *MemoryBM25Index) Rebuild(ctx context.Context, docs []*Document) error {
	snap := &bm25Snapshot{
		docs:     make(map[int64]*bm25Doc, len(docs)),
		postings: make(map[string][]int64),
		df:       make(map[string]int),
	}

	var totalLen int
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}

		stream := TokenizeDocument(doc, m.stopWords)
		entry := &bm25Doc{
			tf:     make(map[string]int, len(stream)),
			length: len(stream),
		}
		for _, tok := range stream {
			entry.tf[tok]++
		}
		for term := range entry.tf {
			snap.df[term]++
			snap.postings[term] = append(snap.postings[term], doc.ID)
		}
		snap.docs[doc.ID] = entry
		totalLen += entry.length
	}

	snap.n = len(snap.docs)
	if snap.n > 0 {
		snap.avgdl = float64(totalLen) / float64(snap.n)
	}
	for term := range snap.postings {
		ids := snap.postings[term]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrIndexUnavailable
	}
	m.snap = snap
	return nil
}

// Search tokenizes the query with the document pipeline and returns up to
// limit results above the minimum score, ranked by BM25 descending with
// ties broken by ascending document ID.
func (m *MemoryBM25Index) Search(ctx context.Context, query string, limit int) ([]SparseResult, error) {
	m.mu.RLock()
	snap := m.snap
	closed := m.closed
	m.mu.RUnlock()

	if closed || snap == nil {
		return nil, ErrIndexUnavailable
	}
	if snap.n == 0 {
		return []SparseResult{}, nil
	}

	terms := Tokenize(query, m.stopWords)
	if len(terms) == 0 {
		return []SparseResult{}, nil
	}

	scores := make(map[int64]float64)
	for _, term := range terms {
		df, ok := snap.df[term]
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(snap.n)-float64(df)+0.5)/(float64(df)+0.5))
		for _, id := range snap.postings[term] {
			doc := snap.docs[id]
			tf := float64(doc.tf[term])
			norm := m.config.K1 * (1 - m.config.B + m.config.B*float64(doc.length)/snap.avgdl)
			scores[id] += idf * tf * (m.config.K1 + 1) / (tf + norm)
		}
	}

	results := make([]SparseResult, 0, len(scores))
	for id, score := range scores {
		if score <= m.config.MinScore {
			continue
		}
		results = append(results, SparseResult{DocID: id, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats returns statistics for the current snapshot.
func (m *MemoryBM25Index) Stats() SparseStats {
	m.mu.RLock()
	snap := m.snap
	m.mu.RUnlock()

	if snap == nil {
		return SparseStats{}
	}
	return SparseStats{
		DocumentCount: snap.n,
		TermCount:     len(snap.df),
		AvgDocLength:  snap.avgdl,
	}
}

// Close releases the snapshot. Subsequent calls error with ErrIndexUnavailable.
func (m *MemoryBM25Index) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.snap = nil
	return nil
}
