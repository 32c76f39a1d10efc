package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/Aman-CERP/ragcrawl/internal/embed"
	"github.com/Aman-CERP/ragcrawl/internal/store"
)

// backendCheckTimeout bounds each individual reachability probe so a single
// unreachable backend can't hang server startup.
const backendCheckTimeout = 5 * time.Second

// CheckEmbeddingBackend probes the embedding API, per spec.md §4.9's
// "initialize() fails fast" requirement: a dead embedding backend should be
// reported before the first tool call, not discovered mid-ingest.
func (c *Checker) CheckEmbeddingBackend(ctx context.Context, embedder embed.Embedder) CheckResult {
	result := CheckResult{Name: "embedding_backend", Required: true}

	ctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	if !embedder.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("embedding backend %q is unreachable", embedder.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s reachable (dim=%d)", embedder.ModelName(), embedder.Dimensions())
	return result
}

// CheckVectorStore probes the vector store by initializing its collections
// at the declared dimension. Safe to call repeatedly: Initialize is
// idempotent for every adapter.
func (c *Checker) CheckVectorStore(ctx context.Context, st store.Store, dimensions int) CheckResult {
	result := CheckResult{Name: "vector_store", Required: true}

	ctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	if err := st.Initialize(ctx, dimensions); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("vector store initialize failed: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("initialized at dimension %d", dimensions)
	return result
}

// RunBackendChecks runs every backend-reachability check. Called once at
// server startup, separately from RunAll's local system checks, so a
// config-only `ragcrawl config` invocation never needs live backends.
func (c *Checker) RunBackendChecks(ctx context.Context, embedder embed.Embedder, st store.Store, dimensions int) []CheckResult {
	return []CheckResult{
		c.CheckEmbeddingBackend(ctx, embedder),
		c.CheckVectorStore(ctx, st, dimensions),
	}
}
