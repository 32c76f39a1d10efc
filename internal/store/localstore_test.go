package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	s := NewLocalStore("")
	require.NoError(t, s.Initialize(context.Background(), 4))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLocalStoreUpsertAndVectorSearchChunks(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	chunks := []*SourceChunk{
		{ID: "c1", SourceID: "docs", URL: "https://a", Content: "apples are red", CreatedAt: time.Now()},
		{ID: "c2", SourceID: "docs", URL: "https://b", Content: "oranges are orange", CreatedAt: time.Now()},
	}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, s.UpsertChunks(ctx, chunks, vectors))

	results, err := s.VectorSearch(ctx, SearchQuery{QueryVector: []float32{1, 0, 0, 0}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestLocalStoreVectorSearchFiltersBySourceID(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	chunks := []*SourceChunk{
		{ID: "c1", SourceID: "docs-a", URL: "https://a", Content: "x", CreatedAt: time.Now()},
		{ID: "c2", SourceID: "docs-b", URL: "https://b", Content: "y", CreatedAt: time.Now()},
	}
	vectors := [][]float32{{1, 0, 0, 0}, {1, 0, 0, 0}}
	require.NoError(t, s.UpsertChunks(ctx, chunks, vectors))

	results, err := s.VectorSearch(ctx, SearchQuery{QueryVector: []float32{1, 0, 0, 0}, SourceID: "docs-b", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].Chunk.ID)
}

func TestLocalStoreKeywordSearchChunks(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	chunks := []*SourceChunk{
		{ID: "c1", SourceID: "docs", URL: "https://a", Content: "the quick brown fox", CreatedAt: time.Now()},
		{ID: "c2", SourceID: "docs", URL: "https://b", Content: "lorem ipsum dolor", CreatedAt: time.Now()},
	}
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	require.NoError(t, s.UpsertChunks(ctx, chunks, vectors))

	results, err := s.KeywordSearch(ctx, SearchQuery{QueryText: "quick fox", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
}

func TestLocalStoreDeleteByURLRemovesVectorAndKeywordEntries(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	chunks := []*SourceChunk{
		{ID: "c1", SourceID: "docs", URL: "https://a", Content: "alpha beta", CreatedAt: time.Now()},
	}
	vectors := [][]float32{{1, 0, 0, 0}}
	require.NoError(t, s.UpsertChunks(ctx, chunks, vectors))

	require.NoError(t, s.DeleteByURL(ctx, "https://a"))

	vecResults, err := s.VectorSearch(ctx, SearchQuery{QueryVector: []float32{1, 0, 0, 0}, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, vecResults)

	kwResults, err := s.KeywordSearch(ctx, SearchQuery{QueryText: "alpha", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, kwResults)
}

func TestLocalStoreCodeExamplesRoundTrip(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	examples := []*CodeExample{
		{ID: "e1", SourceID: "docs", URL: "https://a", Code: "func main() {}", Language: "go", CreatedAt: time.Now()},
	}
	vectors := [][]float32{{0, 0, 1, 0}}
	require.NoError(t, s.UpsertCodeExamples(ctx, examples, vectors))

	results, err := s.VectorSearchCodeExamples(ctx, SearchQuery{QueryVector: []float32{0, 0, 1, 0}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].Example.ID)

	require.NoError(t, s.DeleteCodeExamplesByURL(ctx, "https://a"))
	results, err = s.VectorSearchCodeExamples(ctx, SearchQuery{QueryVector: []float32{0, 0, 1, 0}, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLocalStoreSourceRegistry(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSource(ctx, &Source{SourceID: "docs", Summary: "v1", ChunkCount: 1, UpdatedAt: time.Now()}))
	require.NoError(t, s.UpsertSource(ctx, &Source{SourceID: "docs", Summary: "v2", ChunkCount: 2, UpdatedAt: time.Now()}))

	sources, err := s.GetSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "v2", sources[0].Summary)
}
