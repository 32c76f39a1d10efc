package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClientEmbedSingle(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"hello"}, req.Input)

		resp := embeddingResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1, 0, 0}, Index: 0}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	c := NewHTTPClient(srv.URL, "", "test-model", 3)
	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 3)
}

func TestHTTPClientEmbedBatchSplitsAcrossBatchSize(t *testing.T) {
	var calls int32
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}, len(req.Input))
		for i := range req.Input {
			data[i] = struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(i)}, Index: i}
		}
		require.NoError(t, json.NewEncoder(w).Encode(embeddingResponse{Data: data}))
	})

	c := NewHTTPClient(srv.URL, "", "test-model", 1, WithBatchSize(2))
	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := c.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls)) // batches of 2,2,1
}

func TestHTTPClientFallsBackToZeroVectorOnPersistentFailure(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := NewHTTPClient(srv.URL, "", "test-model", 4,
		WithRetryConfig(RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}))

	vecs, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err) // EmbedBatch never returns an error; it degrades to zero vectors
	require.Len(t, vecs, 1)
	require.Equal(t, make([]float32, 4), vecs[0])
}

func TestHTTPClientRejectsOnMismatchedVectorCount(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(embeddingResponse{Data: nil}))
	})

	c := NewHTTPClient(srv.URL, "", "test-model", 4,
		WithRetryConfig(RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}))

	vecs, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Equal(t, make([]float32, 4), vecs[0])
}

func TestHTTPClientSendsAuthorizationHeader(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(embeddingResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1}, Index: 0}}}))
	})

	c := NewHTTPClient(srv.URL, "secret-key", "test-model", 1)
	_, err := c.Embed(context.Background(), "hi")
	require.NoError(t, err)
}
