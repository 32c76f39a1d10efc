package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGStore is Adapter B: a Store backed by PostgreSQL with the pgvector
// extension. Unlike LocalStore, backend IDs here must be real UUIDs
// (pgvector's btree/ivfflat/hnsw indexes expect a typed primary key), so
// every natural key is translated through chunkBackendID/codeExampleBackendID
// before hitting the database, and the natural key is kept in its own
// column so lookups by URL never need to re-derive it.
//
// Keyword search uses server-side ILIKE rather than Bleve: running a
// second, separate keyword engine next to Postgres would mean keeping two
// stores consistent over the network instead of one.
type PGStore struct {
	pool *pgxpool.Pool
	dims int
}

// NewPGStore connects to a PostgreSQL instance with pgvector installed.
func NewPGStore(ctx context.Context, connString string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

const pgSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunks (
	id UUID PRIMARY KEY,
	natural_key TEXT NOT NULL UNIQUE,
	source_id TEXT NOT NULL,
	url TEXT NOT NULL,
	content TEXT NOT NULL,
	header_path TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL DEFAULT 0,
	metadata JSONB NOT NULL DEFAULT '{}',
	embedding vector(%d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_chunks_url ON chunks(url);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);

CREATE TABLE IF NOT EXISTS code_examples (
	id UUID PRIMARY KEY,
	natural_key TEXT NOT NULL UNIQUE,
	source_id TEXT NOT NULL,
	url TEXT NOT NULL,
	code TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	embedding vector(%d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_code_examples_url ON code_examples(url);

CREATE TABLE IF NOT EXISTS sources (
	source_id TEXT PRIMARY KEY,
	summary TEXT NOT NULL DEFAULT '',
	total_words INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func (s *PGStore) Initialize(ctx context.Context, dimensions int) error {
	s.dims = dimensions
	_, err := s.pool.Exec(ctx, fmt.Sprintf(pgSchema, dimensions, dimensions))
	if err != nil {
		return fmt.Errorf("create pgvector schema: %w", err)
	}

	// HNSW indexes need no existing rows, so they are created here with the
	// schema. Errors are ignored; without an index a search is a sequential scan.
	_, _ = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
		USING hnsw (embedding vector_cosine_ops)
	`)
	_, _ = s.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_code_examples_embedding ON code_examples
		USING hnsw (embedding vector_cosine_ops)
	`)
	return nil
}

func (s *PGStore) UpsertChunks(ctx context.Context, chunks []*SourceChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		backendID := chunkBackendID(c.ID)
		metaJSON := metadataToJSON(c.Metadata)
		batch.Queue(`
			INSERT INTO chunks (id, natural_key, source_id, url, content, header_path, chunk_index, metadata, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (natural_key) DO UPDATE SET
				content = excluded.content, header_path = excluded.header_path,
				chunk_index = excluded.chunk_index, metadata = excluded.metadata,
				embedding = excluded.embedding
		`, backendID, c.ID, c.SourceID, c.URL, c.Content, c.HeaderPath, c.ChunkIndex, metaJSON, pgvector.NewVector(vectors[i]), c.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert chunk batch: %w", err)
		}
	}
	return nil
}

func (s *PGStore) DeleteByURL(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE url = $1`, url)
	if err != nil {
		return fmt.Errorf("delete chunks by url: %w", err)
	}
	return nil
}

func (s *PGStore) VectorSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT natural_key, source_id, url, content, header_path, chunk_index, metadata, created_at,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE ($2 = '' OR source_id = $2)
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(q.QueryVector), q.SourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search chunks: %w", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows, q.FilterMetadata)
}

func (s *PGStore) KeywordSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT natural_key, source_id, url, content, header_path, chunk_index, metadata, created_at,
		       1.0 AS score
		FROM chunks
		WHERE content ILIKE $1 AND ($2 = '' OR source_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, "%"+escapeLike(q.QueryText)+"%", q.SourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search chunks: %w", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows, q.FilterMetadata)
}

func scanScoredChunks(rows pgx.Rows, filter map[string]string) ([]*ScoredChunk, error) {
	var out []*ScoredChunk
	for rows.Next() {
		var c SourceChunk
		var metaJSON []byte
		var score float32
		if err := rows.Scan(&c.ID, &c.SourceID, &c.URL, &c.Content, &c.HeaderPath, &c.ChunkIndex, &metaJSON, &c.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c.Metadata = jsonToMetadata(metaJSON)
		if !matchesFilter(c.SourceID, c.Metadata, SearchQuery{FilterMetadata: filter}) {
			continue
		}
		out = append(out, &ScoredChunk{Chunk: &c, Score: score})
	}
	return out, rows.Err()
}

func (s *PGStore) UpsertCodeExamples(ctx context.Context, examples []*CodeExample, vectors [][]float32) error {
	if len(examples) != len(vectors) {
		return fmt.Errorf("examples and vectors length mismatch: %d vs %d", len(examples), len(vectors))
	}
	if len(examples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, e := range examples {
		backendID := codeExampleBackendID(e.ID)
		batch.Queue(`
			INSERT INTO code_examples (id, natural_key, source_id, url, code, language, summary, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (natural_key) DO UPDATE SET
				code = excluded.code, language = excluded.language,
				summary = excluded.summary, embedding = excluded.embedding
		`, backendID, e.ID, e.SourceID, e.URL, e.Code, e.Language, e.Summary, pgvector.NewVector(vectors[i]), e.CreatedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range examples {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert code example batch: %w", err)
		}
	}
	return nil
}

func (s *PGStore) DeleteCodeExamplesByURL(ctx context.Context, url string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM code_examples WHERE url = $1`, url)
	if err != nil {
		return fmt.Errorf("delete code examples by url: %w", err)
	}
	return nil
}

func (s *PGStore) VectorSearchCodeExamples(ctx context.Context, q SearchQuery) ([]*ScoredCodeExample, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx, `
		SELECT natural_key, source_id, url, code, language, summary, created_at,
		       1 - (embedding <=> $1) AS score
		FROM code_examples
		WHERE ($2 = '' OR source_id = $2)
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(q.QueryVector), q.SourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search code examples: %w", err)
	}
	defer rows.Close()

	var out []*ScoredCodeExample
	for rows.Next() {
		var e CodeExample
		var score float32
		if err := rows.Scan(&e.ID, &e.SourceID, &e.URL, &e.Code, &e.Language, &e.Summary, &e.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scan code example row: %w", err)
		}
		out = append(out, &ScoredCodeExample{Example: &e, Score: score})
	}
	return out, rows.Err()
}

func (s *PGStore) GetSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_id, summary, total_words, chunk_count, updated_at FROM sources ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []*Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.SourceID, &src.Summary, &src.TotalWords, &src.ChunkCount, &src.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}

func (s *PGStore) UpsertSource(ctx context.Context, source *Source) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sources (source_id, summary, total_words, chunk_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id) DO UPDATE SET
			summary = excluded.summary, total_words = excluded.total_words,
			chunk_count = excluded.chunk_count, updated_at = excluded.updated_at
	`, source.SourceID, source.Summary, source.TotalWords, source.ChunkCount, source.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func metadataToJSON(m map[string]string) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

func jsonToMetadata(raw []byte) map[string]string {
	m := make(map[string]string)
	_ = json.Unmarshal(raw, &m)
	return m
}

// escapeLike escapes ILIKE wildcard characters in user-supplied query text
// so a query containing "%" or "_" searches for that literal text.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

var _ Store = (*PGStore)(nil)
