// Package store provides the document model, the SQLite document and
// embedding stores, and the sparse (BM25) and vector indexes that back
// retrieval. This is the persistence and indexing layer for all captured data.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrIndexUnavailable is returned when an index has not been built or has
// been closed. Callers degrade to the remaining signals rather than failing
// the query.
var ErrIndexUnavailable = errors.New("index unavailable")

// Document is a captured item. It is owned and mutated exclusively by the
// DocumentStore; the retrieval pipeline treats it as read-only.
type Document struct {
	ID        int64    // Opaque identifier assigned by the store
	Title     string   // Short title
	Summary   string   // Optional generated summary
	Body      string   // Full text content
	Tags      []string // Ordered user tags
	Extracted string   // Auxiliary extracted text (e.g. transcript, OCR)
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotifyFunc is invoked after a document write so downstream consumers can
// enqueue re-embedding. It must not block.
type NotifyFunc func(docID int64)

// DocumentStore owns documents. The retrieval core only reads from it; the
// post-write notification hook lets the core keep the semantic index
// eventually consistent.
type DocumentStore interface {
	// Get returns the document with the given ID, or ErrNotFound.
	Get(ctx context.Context, id int64) (*Document, error)

	// ListAll returns every document, ordered by ascending ID.
	// Used for full index rebuilds.
	ListAll(ctx context.Context) ([]*Document, error)

	// Put inserts or replaces a document and fires the post-write hook.
	Put(ctx context.Context, doc *Document) error

	// Delete removes a document and fires the post-write hook.
	// Deleting a missing document is a no-op.
	Delete(ctx context.Context, id int64) error

	// Subscribe registers a post-write notification hook.
	Subscribe(fn NotifyFunc)

	Close() error
}

// EmbeddingRecord is a stored per-document embedding. At most one record
// exists per (document, model) pair; upserting replaces.
type EmbeddingRecord struct {
	DocID   int64
	ModelID string
	Vector  []float32
}

// Dims returns the record's dimensionality.
func (r EmbeddingRecord) Dims() int { return len(r.Vector) }

// EmbeddingStore persists embedding records alongside the documents so the
// vector index can be rebuilt without re-embedding.
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, rec EmbeddingRecord) error
	ListEmbeddings(ctx context.Context, modelID string) ([]EmbeddingRecord, error)
	DeleteEmbeddings(ctx context.Context, docID int64) error
}

// SparseResult is a single BM25 search hit.
type SparseResult struct {
	DocID int64
	Score float64
}

// SparseStats describes the indexed corpus.
type SparseStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// SparseIndex provides BM25 keyword search over the tokenized corpus.
//
// Update policy is full rebuild only: Rebuild constructs a complete new
// snapshot and swaps it atomically, so readers observe the old corpus or
// the new one, never a partially built state. Stale reads between rebuilds
// are acceptable.
type SparseIndex interface {
	// Rebuild replaces the indexed corpus with the given documents.
	Rebuild(ctx context.Context, docs []*Document) error

	// Search returns up to limit documents ranked by BM25, ties broken by
	// ascending document ID. Results below the configured minimum score
	// are filtered out.
	Search(ctx context.Context, query string, limit int) ([]SparseResult, error)

	// Stats returns statistics for the current snapshot.
	Stats() SparseStats

	Close() error
}

// SparseConfig configures BM25 scoring.
type SparseConfig struct {
	// K1 is the term frequency saturation parameter (default: 1.2).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64

	// MinScore filters results scoring at or below this value (default: 0).
	MinScore float64

	// StopWords are dropped during tokenization.
	StopWords []string
}

// DefaultSparseConfig returns the default BM25 configuration.
func DefaultSparseConfig() SparseConfig {
	return SparseConfig{
		K1:        1.2,
		B:         0.75,
		MinScore:  0,
		StopWords: DefaultStopWords,
	}
}

// DefaultStopWords are common English words excluded from the token stream.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"from", "has", "have", "in", "is", "it", "its", "of", "on", "or",
	"that", "the", "this", "to", "was", "were", "will", "with",
}

// VectorResult is a single cosine similarity hit.
type VectorResult struct {
	DocID int64
	Score float64 // Cosine similarity, higher is more similar
}

// MaxEmbedBodyLen bounds how much of the body participates in the
// canonical embedding text.
const MaxEmbedBodyLen = 2000

// EmbeddingText builds the canonical text embedded for a document: the
// ordered, delimited concatenation of title, summary, bounded body, tags,
// and extracted auxiliary text. It is reproducible from the document alone,
// so re-embedding an unchanged document yields an identical vector.
func EmbeddingText(doc *Document) string {
	body := doc.Body
	if len(body) > MaxEmbedBodyLen {
		body = body[:MaxEmbedBodyLen]
	}

	parts := make([]string, 0, 5)
	for _, p := range []string{doc.Title, doc.Summary, body, strings.Join(doc.Tags, " "), doc.Extracted} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}
