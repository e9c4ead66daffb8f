package search

import (
	"fmt"
	"sort"
)

// DefaultRRFK is the standard rank-smoothing constant from the RRF paper.
const DefaultRRFK = 60.0

// FusionConfig holds the RRF constant and per-retriever weights.
type FusionConfig struct {
	// K dampens the influence of top ranks; larger values flatten the
	// contribution curve across ranks.
	K float64

	// Weights maps retriever name to its RRF weight. Retrievers absent
	// from the map get weight 1.0.
	Weights map[string]float64

	// RerankWeight scales the reranker's contribution to the combined
	// score when reranking is applied.
	RerankWeight float64
}

// DefaultFusionConfig weights sparse and semantic equally.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		K: DefaultRRFK,
		Weights: map[string]float64{
			SourceSparse:   1.0,
			SourceSemantic: 1.0,
		},
		RerankWeight: 1.0,
	}
}

// Validate rejects non-positive K and negative weights.
func (c FusionConfig) Validate() error {
	if c.K <= 0 {
		return fmt.Errorf("rrf constant must be > 0, got %v", c.K)
	}
	for name, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %q must be >= 0, got %v", name, w)
		}
	}
	if c.RerankWeight < 0 {
		return fmt.Errorf("rerank weight must be >= 0, got %v", c.RerankWeight)
	}
	return nil
}

func (c FusionConfig) weight(name string) float64 {
	if w, ok := c.Weights[name]; ok {
		return w
	}
	return 1.0
}

// Fuse merges per-retriever ranked lists with weighted Reciprocal Rank
// Fusion. A document's RRF score sums weight/(K+rank) over the lists it
// appears in; lists it is missing from contribute nothing. Results come
// back ordered by RRF score descending, ties broken by ascending DocID,
// with FinalRank assigned 1-based.
func Fuse(cfg FusionConfig, lists map[string][]RankedEntry) []*FusedResult {
	byID := make(map[int64]*FusedResult)

	names := make([]string, 0, len(lists))
	for name := range lists {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w := cfg.weight(name)
		for _, e := range lists[name] {
			fr, ok := byID[e.DocID]
			if !ok {
				fr = &FusedResult{
					DocID:  e.DocID,
					Scores: make(map[string]float64),
					Ranks:  make(map[string]int),
				}
				byID[e.DocID] = fr
			}
			fr.Scores[name] = e.Score
			fr.Ranks[name] = e.Rank
			fr.RRFScore += w / (cfg.K + float64(e.Rank))
			fr.Sources = append(fr.Sources, name)
		}
	}

	results := make([]*FusedResult, 0, len(byID))
	for _, fr := range byID {
		fr.CombinedScore = fr.RRFScore
		results = append(results, fr)
	}
	sortFused(results)
	return results
}

// ApplyRerank blends sigmoid-normalized reranker scores into fused
// results. Only documents present in scores survive; each gets
// combined = 0.5*rrf + 0.5*rerankWeight*score, and the list is
// re-sorted by the combined score. Ranks are reassigned.
func ApplyRerank(cfg FusionConfig, results []*FusedResult, scores map[int64]float64) []*FusedResult {
	reranked := make([]*FusedResult, 0, len(scores))
	for _, fr := range results {
		score, ok := scores[fr.DocID]
		if !ok {
			continue
		}
		fr.RerankScore = score
		fr.Scores[SourceRerank] = score
		fr.Sources = append(fr.Sources, SourceRerank)
		fr.CombinedScore = 0.5*fr.RRFScore + 0.5*cfg.RerankWeight*score
		reranked = append(reranked, fr)
	}
	sortFused(reranked)
	return reranked
}

func sortFused(results []*FusedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].DocID < results[j].DocID
	})
	for i, fr := range results {
		fr.FinalRank = i + 1
		sort.Strings(fr.Sources)
	}
}
