package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// recallTokenizerName is the registered name of the shared tokenizer.
	recallTokenizerName = "recall_tokenizer"

	// recallAnalyzerName is the registered name of the keyword analyzer.
	recallAnalyzerName = "recall_analyzer"
)

func init() {
	registry.RegisterTokenizer(recallTokenizerName, bleveTokenizerConstructor)
}

// BleveBM25Index is the library-backed sparse backend. It feeds KeywordText
// (title and tags repeated) through the shared tokenizer, so field weighting
// matches the memory backend; scoring is bleve's own BM25 and only
// approximates the memory backend's exact formula.
type BleveBM25Index struct {
	mu        sync.RWMutex
	index     bleve.Index
	stopWords map[string]struct{}
	closed    bool
}

// bleveDocument is the indexed document shape.
type bleveDocument struct {
	Content string `json:"content"`
}

// Verify interface implementation at compile time.
var _ SparseIndex = (*BleveBM25Index)(nil)

// NewBleveBM25Index creates an empty in-memory bleve index.
func NewBleveBM25Index(config SparseConfig) (*BleveBM25Index, error) {
	idx, err := newBleveIndex()
	if err != nil {
		return nil, err
	}
	return &BleveBM25Index{
		index:     idx,
		stopWords: BuildStopWordMap(config.StopWords),
	}, nil
}

func newBleveIndex() (bleve.Index, error) {
	m, err := createBleveMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return idx, nil
}

func createBleveMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(recallAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": recallTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = recallAnalyzerName
	return indexMapping, nil
}

// Rebuild indexes the documents into a fresh bleve index, then swaps it in.
// The previous index keeps serving reads until the swap completes.
func (b *BleveBM25Index) Rebuild(ctx context.Context, docs []*Document) error {
	idx, err := newBleveIndex()
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return err
		}
		if err := batch.Index(strconv.FormatInt(doc.ID, 10), bleveDocument{Content: KeywordText(doc)}); err != nil {
			_ = idx.Close()
			return fmt.Errorf("index document %d: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("execute batch: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = idx.Close()
		return ErrIndexUnavailable
	}
	old := b.index
	b.index = idx
	b.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search runs a match query (phrase match when the query is quoted) and
// returns bleve's BM25-scored hits, ties broken by ascending document ID.
func (b *BleveBM25Index) Search(ctx context.Context, queryStr string, limit int) ([]SparseResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrIndexUnavailable
	}
	queryStr = strings.TrimSpace(queryStr)
	if queryStr == "" {
		return []SparseResult{}, nil
	}

	var q query.Query
	if phrase, ok := unwrapPhrase(queryStr); ok {
		mq := bleve.NewMatchPhraseQuery(phrase)
		mq.SetField("content")
		q = mq
	} else {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField("content")
		q = mq
	}

	req := bleve.NewSearchRequest(q)
	if limit <= 0 {
		limit = 50
	}
	req.Size = limit

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	results := make([]SparseResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		results = append(results, SparseResult{DocID: id, Score: hit.Score})
	}
	// Bleve already sorts by score; enforce the ID tie-break.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	return results, nil
}

// unwrapPhrase reports whether the query is a quoted phrase and returns its
// contents.
func unwrapPhrase(q string) (string, bool) {
	if len(q) >= 2 && strings.HasPrefix(q, `"`) && strings.HasSuffix(q, `"`) {
		return q[1 : len(q)-1], true
	}
	return q, false
}

// Stats returns the document count. Bleve does not expose term count or
// average document length.
func (b *BleveBM25Index) Stats() SparseStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed || b.index == nil {
		return SparseStats{}
	}
	count, _ := b.index.DocCount()
	return SparseStats{DocumentCount: int(count)}
}

// Close closes the underlying index.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// bleveTokenizerConstructor adapts the shared tokenizer for bleve.
func bleveTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveRecallTokenizer{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type bleveRecallTokenizer struct {
	stopWords map[string]struct{}
}

// Tokenize implements analysis.Tokenizer using the shared pipeline.
func (t *bleveRecallTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text, t.stopWords)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	lower := strings.ToLower(text)

	for _, token := range tokens {
		start := strings.Index(lower[offset:], token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}
