package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex stores per-document embeddings grouped by model and ranks by
// cosine similarity. Top-k retrieval uses an HNSW graph per model for
// candidate selection; scores are always computed exactly from the stored
// vectors.
//
// Replacement uses lazy deletion: the old graph node is orphaned rather
// than removed, and orphans are filtered out of results.
type VectorIndex struct {
	mu     sync.RWMutex
	dims   int
	models map[string]*modelIndex
	closed bool
}

// modelIndex holds one model's records and ANN graph.
type modelIndex struct {
	records map[int64]EmbeddingRecord
	graph   *hnsw.Graph[uint64]
	keyToID map[uint64]int64
	idToKey map[int64]uint64
	nextKey uint64
}

// NewVectorIndex creates a vector index for embeddings of the given
// dimensionality.
func NewVectorIndex(dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dims)
	}
	return &VectorIndex{
		dims:   dims,
		models: make(map[string]*modelIndex),
	}, nil
}

func newModelIndex() *modelIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 32
	return &modelIndex{
		records: make(map[int64]EmbeddingRecord),
		graph:   graph,
		keyToID: make(map[uint64]int64),
		idToKey: make(map[int64]uint64),
	}
}

// Upsert inserts or replaces the record for its (document, model) pair.
func (v *VectorIndex) Upsert(ctx context.Context, rec EmbeddingRecord) error {
	if len(rec.Vector) != v.dims {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", v.dims, len(rec.Vector))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrIndexUnavailable
	}

	mi, ok := v.models[rec.ModelID]
	if !ok {
		mi = newModelIndex()
		v.models[rec.ModelID] = mi
	}

	// Orphan any previous graph node for this document.
	if oldKey, exists := mi.idToKey[rec.DocID]; exists {
		delete(mi.keyToID, oldKey)
		delete(mi.idToKey, rec.DocID)
	}

	key := mi.nextKey
	mi.nextKey++

	vec := make([]float32, len(rec.Vector))
	copy(vec, rec.Vector)
	normalizeInPlace(vec)
	mi.graph.Add(hnsw.MakeNode(key, vec))

	stored := rec
	stored.Vector = make([]float32, len(rec.Vector))
	copy(stored.Vector, rec.Vector)
	mi.records[rec.DocID] = stored
	mi.idToKey[rec.DocID] = key
	mi.keyToID[key] = rec.DocID
	return nil
}

// GetAll returns every record for a model, ordered by ascending document ID.
func (v *VectorIndex) GetAll(modelID string) []EmbeddingRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()

	mi, ok := v.models[modelID]
	if !ok || v.closed {
		return []EmbeddingRecord{}
	}
	recs := make([]EmbeddingRecord, 0, len(mi.records))
	for _, rec := range mi.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].DocID < recs[j].DocID })
	return recs
}

// Delete removes a document's records across all models.
func (v *VectorIndex) Delete(ctx context.Context, docID int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrIndexUnavailable
	}
	for _, mi := range v.models {
		if key, exists := mi.idToKey[docID]; exists {
			delete(mi.keyToID, key)
			delete(mi.idToKey, docID)
			delete(mi.records, docID)
		}
	}
	return nil
}

// Count returns the number of records stored for a model.
func (v *VectorIndex) Count(modelID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	mi, ok := v.models[modelID]
	if !ok || v.closed {
		return 0
	}
	return len(mi.records)
}

// Search returns the k documents most similar to the query vector,
// descending by cosine similarity with ties broken by ascending ID.
// Candidates come from the HNSW graph; scores are exact.
func (v *VectorIndex) Search(ctx context.Context, modelID string, query []float32, k int) ([]VectorResult, error) {
	if len(query) != v.dims {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", v.dims, len(query))
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, ErrIndexUnavailable
	}
	mi, ok := v.models[modelID]
	if !ok || len(mi.records) == 0 {
		return []VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for orphaned nodes filtered below.
	fetch := k * 2
	if fetch < k+8 {
		fetch = k + 8
	}
	nodes := mi.graph.Search(normalized, fetch)

	results := make([]VectorResult, 0, k)
	for _, node := range nodes {
		id, live := mi.keyToID[node.Key]
		if !live {
			continue
		}
		rec := mi.records[id]
		results = append(results, VectorResult{
			DocID: id,
			Score: Cosine(query, rec.Vector),
		})
	}
	sortVectorResults(results)
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Score ranks the given candidate records by exact cosine similarity to the
// query vector, descending, ties by ascending document ID.
func (v *VectorIndex) Score(query []float32, candidates []EmbeddingRecord) []VectorResult {
	results := make([]VectorResult, 0, len(candidates))
	for _, rec := range candidates {
		results = append(results, VectorResult{
			DocID: rec.DocID,
			Score: Cosine(query, rec.Vector),
		})
	}
	sortVectorResults(results)
	return results
}

// Close releases all records and graphs.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.models = nil
	return nil
}

func sortVectorResults(results []VectorResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}

// Cosine returns dot(a,b)/(|a|·|b|), or 0 when either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalizeInPlace scales a vector to unit length. Zero vectors are left
// unchanged.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	mag := math.Sqrt(sumSquares)
	if mag == 0 {
		return
	}
	for i, val := range v {
		v[i] = float32(float64(val) / mag)
	}
}
