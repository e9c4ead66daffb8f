// Package async keeps the semantic index eventually consistent with the
// document store. Document writes enqueue re-embedding work onto a bounded
// worker pool; failures are retried with backoff and logged, never surfaced
// to the writer.
package async

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/recallhq/recall/internal/embed"
	"github.com/recallhq/recall/internal/store"
)

const (
	maxRetries   = 3
	retryBackoff = 2 * time.Second
)

// Reembedder consumes document-write notifications and refreshes the
// persisted embedding and the in-memory vector index for each changed
// document. A deleted document has its embeddings and vectors removed.
type Reembedder struct {
	docs       store.DocumentStore
	embeddings store.EmbeddingStore
	vector     *store.VectorIndex
	embedder   embed.Embedder
	pool       *ants.Pool
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option configures a Reembedder.
type Option func(*Reembedder) error

// WithPoolSize sets the worker pool size. Default is half the CPU count,
// minimum 1.
func WithPoolSize(size int) Option {
	return func(r *Reembedder) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReembedder creates the worker and subscribes it to the document
// store's post-write notifications.
func NewReembedder(
	docs store.DocumentStore,
	embeddings store.EmbeddingStore,
	vector *store.VectorIndex,
	embedder embed.Embedder,
	opts ...Option,
) (*Reembedder, error) {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	r := &Reembedder{
		docs:       docs,
		embeddings: embeddings,
		vector:     vector,
		embedder:   embedder,
		pool:       pool,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			r.pool.Release()
			return nil, optErr
		}
	}

	docs.Subscribe(r.Enqueue)
	return r, nil
}

// Enqueue schedules re-embedding for a document. Safe to call from the
// store's write path; the work runs on the pool. Calls after Close are
// dropped.
func (r *Reembedder) Enqueue(docID int64) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	err := r.pool.Submit(func() {
		defer r.wg.Done()
		r.process(context.Background(), docID)
	})
	if err != nil {
		r.wg.Done()
		r.logger.Error("reembed submit failed",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()))
	}
}

func (r *Reembedder) process(ctx context.Context, docID int64) {
	doc, err := r.docs.Get(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		r.remove(ctx, docID)
		return
	}
	if err != nil {
		r.logger.Error("reembed fetch failed",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()))
		return
	}

	text := store.EmbeddingText(doc)
	vec, err := r.embedWithRetry(ctx, text)
	if err != nil {
		r.logger.Warn("reembed skipped, embedding unavailable",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()))
		return
	}

	rec := store.EmbeddingRecord{
		DocID:   docID,
		ModelID: r.embedder.ModelName(),
		Vector:  vec,
	}
	if err := r.embeddings.SaveEmbedding(ctx, rec); err != nil {
		r.logger.Error("reembed persist failed",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()))
		return
	}
	if err := r.vector.Upsert(ctx, rec); err != nil {
		r.logger.Error("reembed index update failed",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()))
		return
	}

	r.logger.Debug("reembed_complete", slog.Int64("doc_id", docID))
}

func (r *Reembedder) remove(ctx context.Context, docID int64) {
	if err := r.embeddings.DeleteEmbeddings(ctx, docID); err != nil {
		r.logger.Error("embedding delete failed",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()))
	}
	if err := r.vector.Delete(ctx, docID); err != nil {
		r.logger.Error("vector delete failed",
			slog.Int64("doc_id", docID),
			slog.String("error", err.Error()))
	}
}

func (r *Reembedder) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
		vec, err := r.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Wait blocks until all queued work has finished.
func (r *Reembedder) Wait() {
	r.wg.Wait()
}

// Close drains queued work and releases the pool.
func (r *Reembedder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	r.pool.Release()
	return nil
}
