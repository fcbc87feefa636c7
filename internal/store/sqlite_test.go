package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := NewSQLiteIndex("")
	require.NoError(t, err)
	require.NoError(t, idx.EnsureIndex(context.Background()))
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_UpsertAndSearch_BM25(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	chunks := []Chunk{
		{ID: "a", Content: "deploy the frontend to staging", SourceFile: "docs/deploy.md", HeadingPath: "Deploy", Domain: "frontend", LastUpdated: time.Now(), ChunkIndex: 0},
		{ID: "b", Content: "database migrations run automatically", SourceFile: "docs/db.md", HeadingPath: "Migrations", Domain: "backend", LastUpdated: time.Now(), ChunkIndex: 0},
	}
	require.NoError(t, idx.UpsertChunks(ctx, chunks))

	hits, err := idx.Search(ctx, "deploy frontend", nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].Chunk.ID)
}

func TestSQLiteIndex_UpsertReplacesExistingRow(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	c := Chunk{ID: "a", Content: "original text", SourceFile: "f.md", LastUpdated: time.Now()}
	require.NoError(t, idx.UpsertChunks(ctx, []Chunk{c}))

	c.Content = "updated text"
	require.NoError(t, idx.UpsertChunks(ctx, []Chunk{c}))

	count, err := idx.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := idx.Search(ctx, "updated", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "updated text", hits[0].Chunk.Content)
}

func TestSQLiteIndex_DeleteChunksForFile(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, []Chunk{
		{ID: "a", Content: "one", SourceFile: "f.md", LastUpdated: time.Now()},
		{ID: "b", Content: "two", SourceFile: "g.md", LastUpdated: time.Now()},
	}))

	require.NoError(t, idx.DeleteChunksForFile(ctx, "f.md"))

	count, err := idx.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteIndex_VectorSearch_RanksByCosineSimilarity(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, []Chunk{
		{ID: "close", Content: "x", SourceFile: "f.md", Embedding: []float32{1, 0, 0}, LastUpdated: time.Now()},
		{ID: "far", Content: "y", SourceFile: "f.md", Embedding: []float32{0, 1, 0}, LastUpdated: time.Now()},
	}))

	hits, err := idx.Search(ctx, "", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "close", hits[0].Chunk.ID)
}

func TestSQLiteIndex_Search_ReservedCharsInQueryDoNotError(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.UpsertChunks(ctx, []Chunk{
		{ID: "a", Content: "has a bracket [like this] in it", SourceFile: "f.md", LastUpdated: time.Now()},
	}))

	hits, err := idx.Search(ctx, `"unterminated`, nil, 10)
	require.NoError(t, err)
	_ = hits // the stray quote is stripped before MATCH, so the query must not error, regardless of ranking
}

func TestSQLiteIndex_ChunkCount_ZeroOnEmptyStore(t *testing.T) {
	idx := newTestIndex(t)
	count, err := idx.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSQLiteIndex_LastIndexedTime_NilWhenEmpty(t *testing.T) {
	idx := newTestIndex(t)
	ts, err := idx.LastIndexedTime(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ts)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
}

func TestEncodeDecodeVector_RoundTrips(t *testing.T) {
	v := []float32{0.5, -1.25, 3.0}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}

func TestFuseRRF_CombinesRankedLists(t *testing.T) {
	scores := fuseRRF([]string{"a", "b"}, []string{"b", "a"})
	assert.InDelta(t, scores["a"], scores["b"], 1e-12)
}
