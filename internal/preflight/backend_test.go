package preflight

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/ragcrawl/internal/store"
)

type fakeEmbedder struct {
	available bool
	dims      int
	model     string
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }
func (f *fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, nil
}
func (f *fakeEmbedder) Dimensions() int        { return f.dims }
func (f *fakeEmbedder) ModelName() string      { return f.model }
func (f *fakeEmbedder) Available(context.Context) bool { return f.available }
func (f *fakeEmbedder) Close() error            { return nil }

type fakeStore struct {
	initErr error
}

func (f *fakeStore) Initialize(context.Context, int) error { return f.initErr }
func (f *fakeStore) UpsertChunks(context.Context, []*store.SourceChunk, [][]float32) error {
	return nil
}
func (f *fakeStore) DeleteByURL(context.Context, string) error { return nil }
func (f *fakeStore) VectorSearch(context.Context, store.SearchQuery) ([]*store.ScoredChunk, error) {
	return nil, nil
}
func (f *fakeStore) KeywordSearch(context.Context, store.SearchQuery) ([]*store.ScoredChunk, error) {
	return nil, nil
}
func (f *fakeStore) UpsertCodeExamples(context.Context, []*store.CodeExample, [][]float32) error {
	return nil
}
func (f *fakeStore) DeleteCodeExamplesByURL(context.Context, string) error { return nil }
func (f *fakeStore) VectorSearchCodeExamples(context.Context, store.SearchQuery) ([]*store.ScoredCodeExample, error) {
	return nil, nil
}
func (f *fakeStore) GetSources(context.Context) ([]*store.Source, error) { return nil, nil }
func (f *fakeStore) UpsertSource(context.Context, *store.Source) error   { return nil }
func (f *fakeStore) Close() error                                       { return nil }

func TestCheckEmbeddingBackend_Reachable(t *testing.T) {
	c := New()
	result := c.CheckEmbeddingBackend(context.Background(), &fakeEmbedder{available: true, dims: 1536, model: "test-model"})
	assert.Equal(t, StatusPass, result.Status)
}

func TestCheckEmbeddingBackend_Unreachable(t *testing.T) {
	c := New()
	result := c.CheckEmbeddingBackend(context.Background(), &fakeEmbedder{available: false, model: "test-model"})
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestCheckVectorStore_InitializeFails(t *testing.T) {
	c := New()
	result := c.CheckVectorStore(context.Background(), &fakeStore{initErr: errors.New("connection refused")}, 1536)
	assert.Equal(t, StatusFail, result.Status)
}

func TestCheckVectorStore_InitializeSucceeds(t *testing.T) {
	c := New()
	result := c.CheckVectorStore(context.Background(), &fakeStore{}, 1536)
	assert.Equal(t, StatusPass, result.Status)
}

func TestRunBackendChecks_ReturnsBothChecks(t *testing.T) {
	c := New()
	results := c.RunBackendChecks(context.Background(), &fakeEmbedder{available: true, dims: 1536, model: "m"}, &fakeStore{}, 1536)
	assert.Len(t, results, 2)
}
