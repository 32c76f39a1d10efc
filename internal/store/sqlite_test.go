package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLiteMetadata(t *testing.T) *sqliteMetadata {
	t.Helper()
	m, err := openSQLiteMetadata(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.close() })
	return m
}

func TestSQLiteMetadataSaveAndGetChunks(t *testing.T) {
	m := openTestSQLiteMetadata(t)
	ctx := context.Background()

	chunks := []*SourceChunk{
		{ID: "c1", SourceID: "docs.example.com", URL: "https://docs.example.com/a", Content: "hello", ChunkIndex: 0, Metadata: map[string]string{"lang": "en"}, CreatedAt: time.Now()},
		{ID: "c2", SourceID: "docs.example.com", URL: "https://docs.example.com/a", Content: "world", ChunkIndex: 1, CreatedAt: time.Now()},
	}
	require.NoError(t, m.saveChunks(ctx, chunks))

	got, err := m.getChunks(ctx, []string{"c1", "c2", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got["c1"].Content)
	assert.Equal(t, "en", got["c1"].Metadata["lang"])
	assert.Equal(t, "world", got["c2"].Content)
}

func TestSQLiteMetadataUpsertOverwritesContent(t *testing.T) {
	m := openTestSQLiteMetadata(t)
	ctx := context.Background()

	c := &SourceChunk{ID: "c1", SourceID: "s", URL: "u", Content: "first", CreatedAt: time.Now()}
	require.NoError(t, m.saveChunks(ctx, []*SourceChunk{c}))

	c.Content = "second"
	require.NoError(t, m.saveChunks(ctx, []*SourceChunk{c}))

	got, err := m.getChunks(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, "second", got["c1"].Content)
}

func TestSQLiteMetadataChunkIDsByURLAndDelete(t *testing.T) {
	m := openTestSQLiteMetadata(t)
	ctx := context.Background()

	chunks := []*SourceChunk{
		{ID: "c1", SourceID: "s", URL: "https://a", Content: "x", CreatedAt: time.Now()},
		{ID: "c2", SourceID: "s", URL: "https://a", Content: "y", CreatedAt: time.Now()},
		{ID: "c3", SourceID: "s", URL: "https://b", Content: "z", CreatedAt: time.Now()},
	}
	require.NoError(t, m.saveChunks(ctx, chunks))

	ids, err := m.chunkIDsByURL(ctx, "https://a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

	require.NoError(t, m.deleteChunks(ctx, ids))

	remaining, err := m.getChunks(ctx, []string{"c1", "c2", "c3"})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Contains(t, remaining, "c3")
}

func TestSQLiteMetadataCodeExamplesRoundTrip(t *testing.T) {
	m := openTestSQLiteMetadata(t)
	ctx := context.Background()

	ex := &CodeExample{ID: "e1", SourceID: "s", URL: "https://a", Code: "fmt.Println()", Language: "go", CreatedAt: time.Now()}
	require.NoError(t, m.saveCodeExamples(ctx, []*CodeExample{ex}))

	got, err := m.getCodeExamples(ctx, []string{"e1"})
	require.NoError(t, err)
	assert.Equal(t, "fmt.Println()", got["e1"].Code)

	ids, err := m.codeExampleIDsByURL(ctx, "https://a")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, ids)

	require.NoError(t, m.deleteCodeExamples(ctx, ids))
	got, err = m.getCodeExamples(ctx, []string{"e1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteMetadataSourceUpsertAndList(t *testing.T) {
	m := openTestSQLiteMetadata(t)
	ctx := context.Background()

	src := &Source{SourceID: "docs.example.com", Summary: "first pass", TotalWords: 10, ChunkCount: 2, UpdatedAt: time.Now()}
	require.NoError(t, m.upsertSource(ctx, src))

	src.Summary = "second pass"
	src.ChunkCount = 5
	require.NoError(t, m.upsertSource(ctx, src))

	sources, err := m.getSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "second pass", sources[0].Summary)
	assert.Equal(t, 5, sources[0].ChunkCount)
}

func TestSQLiteMetadataRecomputeSourceAggregate(t *testing.T) {
	m := openTestSQLiteMetadata(t)
	ctx := context.Background()

	chunks := []*SourceChunk{
		{ID: "c1", SourceID: "s", URL: "u", Content: "one two three", CreatedAt: time.Now()},
		{ID: "c2", SourceID: "s", URL: "u", Content: "four five", CreatedAt: time.Now()},
	}
	require.NoError(t, m.saveChunks(ctx, chunks))

	agg, err := m.recomputeSourceAggregate(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, agg.ChunkCount)
	assert.Equal(t, 5, agg.TotalWords)
}
