package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// LocalStore is Adapter A: an in-process Store backed by HNSW vector
// indexes, a Bleve keyword index, and a SQLite metadata database. Chunk and
// code-example IDs are used directly as backend IDs here; unlike Adapter B
// there's no UUID translation requirement, since SQLite and HNSW/Bleve
// accept arbitrary string keys.
type LocalStore struct {
	mu sync.RWMutex

	dataDir      string
	dirLock      *flock.Flock
	chunkVectors *HNSWStore
	codeVectors  *HNSWStore
	keywordIndex BM25Index
	meta         *sqliteMetadata
	dims         int
}

// NewLocalStore constructs an uninitialized Adapter A store rooted at
// dataDir. dataDir may be empty, in which case everything lives in memory
// and nothing survives a restart — used for tests.
func NewLocalStore(dataDir string) *LocalStore {
	return &LocalStore{dataDir: dataDir}
}

func (s *LocalStore) Initialize(ctx context.Context, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Already initialized at this dimension: keep the open indexes and lock.
	if s.meta != nil && s.dims == dimensions {
		return nil
	}

	cfg := DefaultVectorStoreConfig(dimensions)

	chunkVectors, err := NewHNSWStore(cfg)
	if err != nil {
		return fmt.Errorf("create chunk vector store: %w", err)
	}
	codeVectors, err := NewHNSWStore(cfg)
	if err != nil {
		return fmt.Errorf("create code example vector store: %w", err)
	}

	bleveDir := ""
	sqlitePath := ":memory:"
	if s.dataDir != "" {
		lock := flock.New(filepath.Join(s.dataDir, ".ragcrawl.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock data dir %s: %w", s.dataDir, err)
		}
		if !locked {
			return fmt.Errorf("data dir %s is locked by another ragcrawl process", s.dataDir)
		}
		s.dirLock = lock

		bleveDir = filepath.Join(s.dataDir, "keyword.bleve")
		sqlitePath = filepath.Join(s.dataDir, "metadata.sqlite")

		// errors here just mean a fresh data dir with no prior index to load
		_ = chunkVectors.Load(filepath.Join(s.dataDir, "chunks.hnsw"))
		_ = codeVectors.Load(filepath.Join(s.dataDir, "code_examples.hnsw"))
	}

	keywordIndex, err := NewBleveBM25Index(bleveDir, DefaultBM25Config())
	if err != nil {
		return fmt.Errorf("create keyword index: %w", err)
	}

	meta, err := openSQLiteMetadata(sqlitePath)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}

	s.chunkVectors = chunkVectors
	s.codeVectors = codeVectors
	s.keywordIndex = keywordIndex
	s.meta = meta
	s.dims = dimensions

	return nil
}

// overfetch multiplies the requested limit when querying the underlying
// index, since post-filtering by source or metadata can only shrink the
// candidate set.
func overfetch(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit * 4
}

func matchesFilter(chunkSourceID string, chunkMeta map[string]string, q SearchQuery) bool {
	if q.SourceID != "" && chunkSourceID != q.SourceID {
		return false
	}
	for k, v := range q.FilterMetadata {
		if chunkMeta[k] != v {
			return false
		}
	}
	return true
}

func (s *LocalStore) UpsertChunks(ctx context.Context, chunks []*SourceChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(chunks))
	docs := make([]*Document, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		docs[i] = &Document{ID: c.ID, Content: c.Content}
	}

	if err := s.chunkVectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("add chunk vectors: %w", err)
	}
	if err := s.keywordIndex.Index(ctx, docs); err != nil {
		return fmt.Errorf("index chunk keywords: %w", err)
	}
	if err := s.meta.saveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunk metadata: %w", err)
	}
	return nil
}

func (s *LocalStore) DeleteByURL(ctx context.Context, url string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.meta.chunkIDsByURL(ctx, url)
	if err != nil {
		return fmt.Errorf("lookup chunk ids for %s: %w", url, err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.chunkVectors.Delete(ctx, ids); err != nil {
		return err
	}
	if err := s.keywordIndex.Delete(ctx, ids); err != nil {
		return err
	}
	return s.meta.deleteChunks(ctx, ids)
}

func (s *LocalStore) VectorSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.chunkVectors.Search(ctx, q.QueryVector, overfetch(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("vector search chunks: %w", err)
	}
	return s.scoreChunks(ctx, results, q)
}

func (s *LocalStore) KeywordSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.keywordIndex.Search(ctx, q.QueryText, overfetch(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("keyword search chunks: %w", err)
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.DocID
	}
	chunkByID, err := s.meta.getChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*ScoredChunk, 0, len(hits))
	for _, h := range hits {
		c, ok := chunkByID[h.DocID]
		if !ok {
			continue
		}
		if !matchesFilter(c.SourceID, c.Metadata, q) {
			continue
		}
		out = append(out, &ScoredChunk{Chunk: c, Score: float32(h.Score)})
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *LocalStore) scoreChunks(ctx context.Context, results []*VectorResult, q SearchQuery) ([]*ScoredChunk, error) {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	chunkByID, err := s.meta.getChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*ScoredChunk, 0, len(results))
	for _, r := range results {
		c, ok := chunkByID[r.ID]
		if !ok {
			continue
		}
		if !matchesFilter(c.SourceID, c.Metadata, q) {
			continue
		}
		out = append(out, &ScoredChunk{Chunk: c, Score: r.Score})
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *LocalStore) UpsertCodeExamples(ctx context.Context, examples []*CodeExample, vectors [][]float32) error {
	if len(examples) != len(vectors) {
		return fmt.Errorf("examples and vectors length mismatch: %d vs %d", len(examples), len(vectors))
	}
	if len(examples) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(examples))
	for i, e := range examples {
		ids[i] = e.ID
	}
	if err := s.codeVectors.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("add code example vectors: %w", err)
	}
	return s.meta.saveCodeExamples(ctx, examples)
}

func (s *LocalStore) DeleteCodeExamplesByURL(ctx context.Context, url string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.meta.codeExampleIDsByURL(ctx, url)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.codeVectors.Delete(ctx, ids); err != nil {
		return err
	}
	return s.meta.deleteCodeExamples(ctx, ids)
}

func (s *LocalStore) VectorSearchCodeExamples(ctx context.Context, q SearchQuery) ([]*ScoredCodeExample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.codeVectors.Search(ctx, q.QueryVector, overfetch(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("vector search code examples: %w", err)
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	exByID, err := s.meta.getCodeExamples(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*ScoredCodeExample, 0, len(results))
	for _, r := range results {
		e, ok := exByID[r.ID]
		if !ok {
			continue
		}
		if q.SourceID != "" && e.SourceID != q.SourceID {
			continue
		}
		out = append(out, &ScoredCodeExample{Example: e, Score: r.Score})
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *LocalStore) GetSources(ctx context.Context) ([]*Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.getSources(ctx)
}

func (s *LocalStore) UpsertSource(ctx context.Context, source *Source) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.upsertSource(ctx, source)
}

func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dataDir != "" {
		if err := s.chunkVectors.Save(filepath.Join(s.dataDir, "chunks.hnsw")); err != nil {
			return fmt.Errorf("save chunk vectors: %w", err)
		}
		if err := s.codeVectors.Save(filepath.Join(s.dataDir, "code_examples.hnsw")); err != nil {
			return fmt.Errorf("save code example vectors: %w", err)
		}
	}

	if err := s.chunkVectors.Close(); err != nil {
		return err
	}
	if err := s.codeVectors.Close(); err != nil {
		return err
	}
	if err := s.keywordIndex.Close(); err != nil {
		return err
	}
	if err := s.meta.close(); err != nil {
		return err
	}

	if s.dirLock != nil {
		return s.dirLock.Unlock()
	}
	return nil
}

var _ Store = (*LocalStore)(nil)
