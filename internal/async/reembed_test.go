package async

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/embed"
	"github.com/recallhq/recall/internal/store"
)

func newReembedFixture(t *testing.T) (*store.SQLiteStore, *store.VectorIndex, *Reembedder) {
	t.Helper()

	docs, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewVectorIndex(embedder.Dimensions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	r, err := NewReembedder(docs, docs, vector, embedder, WithPoolSize(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	return docs, vector, r
}

func TestReembedder_EmbedsOnPut(t *testing.T) {
	docs, vector, r := newReembedFixture(t)
	ctx := context.Background()

	doc := &store.Document{Title: "note", Body: "some body text"}
	require.NoError(t, docs.Put(ctx, doc))
	r.Wait()

	assert.Equal(t, 1, vector.Count("static"))

	recs, err := docs.ListEmbeddings(ctx, "static")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, doc.ID, recs[0].DocID)

	// Persisted vector matches a direct embedding of the canonical text.
	want, err := embed.NewStaticEmbedder().Embed(ctx, store.EmbeddingText(doc))
	require.NoError(t, err)
	assert.Equal(t, want, recs[0].Vector)
}

func TestReembedder_ReembedsOnUpdate(t *testing.T) {
	docs, _, r := newReembedFixture(t)
	ctx := context.Background()

	doc := &store.Document{Title: "v1", Body: "original"}
	require.NoError(t, docs.Put(ctx, doc))
	r.Wait()

	doc.Body = "completely different content now"
	require.NoError(t, docs.Put(ctx, doc))
	r.Wait()

	recs, err := docs.ListEmbeddings(ctx, "static")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	want, err := embed.NewStaticEmbedder().Embed(ctx, store.EmbeddingText(doc))
	require.NoError(t, err)
	assert.Equal(t, want, recs[0].Vector)
}

func TestReembedder_RemovesOnDelete(t *testing.T) {
	docs, vector, r := newReembedFixture(t)
	ctx := context.Background()

	doc := &store.Document{Title: "doomed", Body: "text"}
	require.NoError(t, docs.Put(ctx, doc))
	r.Wait()
	require.Equal(t, 1, vector.Count("static"))

	require.NoError(t, docs.Delete(ctx, doc.ID))
	r.Wait()

	assert.Zero(t, vector.Count("static"))
	recs, err := docs.ListEmbeddings(ctx, "static")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestReembedder_CloseDrainsAndStops(t *testing.T) {
	docs, vector, r := newReembedFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, docs.Put(ctx, &store.Document{Title: "doc", Body: "text"}))
	}
	require.NoError(t, r.Close())
	assert.Equal(t, 5, vector.Count("static"))

	// Writes after close are accepted but not embedded.
	require.NoError(t, docs.Put(ctx, &store.Document{Title: "late", Body: "text"}))
	assert.Equal(t, 5, vector.Count("static"))
}
