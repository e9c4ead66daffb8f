package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_PutAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{Title: "first", Body: "body text"}
	require.NoError(t, s.Put(ctx, doc))
	assert.NotZero(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, "body text", got.Body)
}

func TestSQLiteStore_PutReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{Title: "original", Body: "v1", Tags: []string{"a"}}
	require.NoError(t, s.Put(ctx, doc))

	doc.Title = "updated"
	doc.Body = "v2"
	doc.Tags = []string{"a", "b"}
	require.NoError(t, s.Put(ctx, doc))

	got, err := s.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Title)
	assert.Equal(t, "v2", got.Body)
	assert.Equal(t, []string{"a", "b"}, got.Tags)

	docs, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListAllOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		require.NoError(t, s.Put(ctx, &Document{Title: title}))
	}

	docs, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i := 1; i < len(docs); i++ {
		assert.Greater(t, docs[i].ID, docs[i-1].ID)
	}
}

func TestSQLiteStore_DeleteRemovesEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &Document{Title: "doomed"}
	require.NoError(t, s.Put(ctx, doc))
	require.NoError(t, s.SaveEmbedding(ctx, EmbeddingRecord{
		DocID: doc.ID, ModelID: "m", Vector: []float32{1, 2, 3},
	}))

	require.NoError(t, s.Delete(ctx, doc.ID))

	_, err := s.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	recs, err := s.ListEmbeddings(ctx, "m")
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Deleting again is a no-op.
	assert.NoError(t, s.Delete(ctx, doc.ID))
}

func TestSQLiteStore_NotifyOnWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var notified []int64
	s.Subscribe(func(docID int64) { notified = append(notified, docID) })

	doc := &Document{Title: "watched"}
	require.NoError(t, s.Put(ctx, doc))
	require.NoError(t, s.Delete(ctx, doc.ID))

	assert.Equal(t, []int64{doc.ID, doc.ID}, notified)
}

func TestSQLiteStore_EmbeddingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vec := []float32{0.25, -1.5, 3.125}
	require.NoError(t, s.SaveEmbedding(ctx, EmbeddingRecord{DocID: 1, ModelID: "m", Vector: vec}))

	// Upsert replaces.
	vec2 := []float32{1, 1, 1}
	require.NoError(t, s.SaveEmbedding(ctx, EmbeddingRecord{DocID: 1, ModelID: "m", Vector: vec2}))

	recs, err := s.ListEmbeddings(ctx, "m")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].DocID)
	assert.Equal(t, vec2, recs[0].Vector)

	// Other models are isolated.
	other, err := s.ListEmbeddings(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}
