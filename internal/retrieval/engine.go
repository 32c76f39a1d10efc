// Package retrieval implements the rag_query pipeline: embed the query,
// search the vector store, optionally merge in keyword results and rerank,
// per spec.md §4.6. It's adapted from the teacher's internal/search hybrid
// pipeline (fusion.go/reranker.go) with the teacher's local-codebase BM25
// document fields replaced by store.SourceChunk's URL/chunk-index shape.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/Aman-CERP/ragcrawl/internal/embed"
	"github.com/Aman-CERP/ragcrawl/internal/store"
)

// Mode selects how rag_query combines vector and keyword search.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
	ModeRerank Mode = "rerank"
)

// Query is one rag_query call's parameters.
type Query struct {
	Text     string
	K        int
	SourceID string // restrict to one source when non-empty
	Mode     Mode
}

// Result is a single scored chunk returned to the caller.
type Result struct {
	URL          string
	ChunkIndex   int
	Content      string
	Metadata     map[string]string
	Score        float64
	RerankScore  *float64
}

// Engine runs rag_query against an embedder, a store, and an optional
// reranker.
type Engine struct {
	Embedder embed.Embedder
	Store    store.Store
	Reranker Reranker
	RRFK     int
}

// New builds an Engine. A nil reranker is replaced with NoOpReranker so
// Query never needs a nil check.
func New(embedder embed.Embedder, st store.Store, reranker Reranker) *Engine {
	if reranker == nil {
		reranker = NoOpReranker{}
	}
	return &Engine{Embedder: embedder, Store: st, Reranker: reranker, RRFK: DefaultRRFConstant}
}

// Query executes the five-step rag_query pipeline from spec.md §4.6.
func (e *Engine) Query(ctx context.Context, q Query) ([]Result, error) {
	if q.K <= 0 {
		q.K = 10
	}

	// Step 1: embed the query.
	vec, err := e.Embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Step 2: vector search with k' = k (vector mode) or 2k (hybrid/rerank).
	kPrime := q.K
	if q.Mode == ModeHybrid || q.Mode == ModeRerank {
		kPrime = q.K * 2
	}

	vecResults, err := e.Store.VectorSearch(ctx, store.SearchQuery{
		QueryVector: vec,
		SourceID:    q.SourceID,
		Limit:       kPrime,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	byID := make(map[string]*store.ScoredChunk, len(vecResults))
	vecIDs := make([]string, len(vecResults))
	for i, r := range vecResults {
		byID[r.Chunk.ID] = r
		vecIDs[i] = r.Chunk.ID
	}

	candidates := vecResults

	// Step 3: hybrid merge via RRF.
	if q.Mode == ModeHybrid {
		kwResults, err := e.Store.KeywordSearch(ctx, store.SearchQuery{
			QueryText: q.Text,
			SourceID:  q.SourceID,
			Limit:     kPrime,
		})
		if err != nil {
			return nil, fmt.Errorf("keyword search: %w", err)
		}
		kwIDs := make([]string, len(kwResults))
		for i, r := range kwResults {
			kwIDs[i] = r.Chunk.ID
			if _, ok := byID[r.Chunk.ID]; !ok {
				byID[r.Chunk.ID] = r
			}
		}

		fused := rrfFuse(vecIDs, kwIDs, e.RRFK, kPrime)
		candidates = make([]*store.ScoredChunk, 0, len(fused))
		for _, f := range fused {
			if sc, ok := byID[f.ChunkID]; ok {
				candidates = append(candidates, &store.ScoredChunk{Chunk: sc.Chunk, Score: float32(f.RRFScore)})
			}
		}
	}

	// Step 4: rerank via cross-encoder, truncate to k.
	var rerankScores map[string]float64
	if q.Mode == ModeRerank {
		texts := make([]string, len(candidates))
		for i, c := range candidates {
			texts[i] = c.Chunk.Content
		}
		scores, err := e.Reranker.Rerank(ctx, q.Text, texts)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
		rerankScores = make(map[string]float64, len(scores))
		for _, s := range scores {
			if s.Index >= 0 && s.Index < len(candidates) {
				rerankScores[candidates[s.Index].Chunk.ID] = s.Score
			}
		}
	}

	// Step 5: build results, ordering by rerank score if present else vector
	// score, tiebreak by chunk_index then url, truncated to k.
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		r := Result{
			URL:        c.Chunk.URL,
			ChunkIndex: c.Chunk.ChunkIndex,
			Content:    c.Chunk.Content,
			Metadata:   c.Chunk.Metadata,
			Score:      float64(c.Score),
		}
		if rs, ok := rerankScores[c.Chunk.ID]; ok {
			rs := rs
			r.RerankScore = &rs
		}
		results[i] = r
	}

	sort.SliceStable(results, func(i, j int) bool {
		si, sj := primaryScore(results[i]), primaryScore(results[j])
		if si != sj {
			return si > sj
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].URL < results[j].URL
	})

	if len(results) > q.K {
		results = results[:q.K]
	}
	return results, nil
}

func primaryScore(r Result) float64 {
	if r.RerankScore != nil {
		return *r.RerankScore
	}
	return r.Score
}
