package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteMetadata persists SourceChunk, CodeExample, and Source rows
// alongside the HNSW vector index and Bleve keyword index that Adapter A
// layers on top of it.
type sqliteMetadata struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	url TEXT NOT NULL,
	content TEXT NOT NULL,
	header_path TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL DEFAULT 0,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_url ON chunks(url);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);

CREATE TABLE IF NOT EXISTS code_examples (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	url TEXT NOT NULL,
	code TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_code_examples_url ON code_examples(url);

CREATE TABLE IF NOT EXISTS sources (
	source_id TEXT PRIMARY KEY,
	summary TEXT NOT NULL DEFAULT '',
	total_words INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func openSQLiteMetadata(path string) (*sqliteMetadata, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite metadata db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer avoids SQLITE_BUSY under our own lock

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &sqliteMetadata{db: db}, nil
}

func (m *sqliteMetadata) saveChunks(ctx context.Context, chunks []*SourceChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_id, url, content, header_path, chunk_index, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			header_path = excluded.header_path,
			chunk_index = excluded.chunk_index,
			metadata_json = excluded.metadata_json
	`)
	if err != nil {
		return fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.SourceID, c.URL, c.Content, c.HeaderPath, c.ChunkIndex, string(metaJSON), c.CreatedAt); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (m *sqliteMetadata) getChunks(ctx context.Context, ids []string) (map[string]*SourceChunk, error) {
	result := make(map[string]*SourceChunk, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, source_id, url, content, header_path, chunk_index, metadata_json, created_at FROM chunks WHERE id IN (%s)`, placeholders)
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c SourceChunk
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.SourceID, &c.URL, &c.Content, &c.HeaderPath, &c.ChunkIndex, &metaJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
		result[c.ID] = &c
	}
	return result, rows.Err()
}

func (m *sqliteMetadata) chunkIDsByURL(ctx context.Context, url string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM chunks WHERE url = ?`, url)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids by url: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (m *sqliteMetadata) deleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM chunks WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *sqliteMetadata) saveCodeExamples(ctx context.Context, examples []*CodeExample) error {
	if len(examples) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO code_examples (id, source_id, url, code, language, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code, language = excluded.language, summary = excluded.summary
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range examples {
		if _, err := stmt.ExecContext(ctx, e.ID, e.SourceID, e.URL, e.Code, e.Language, e.Summary, e.CreatedAt); err != nil {
			return fmt.Errorf("upsert code example %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (m *sqliteMetadata) getCodeExamples(ctx context.Context, ids []string) (map[string]*CodeExample, error) {
	result := make(map[string]*CodeExample, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, source_id, url, code, language, summary, created_at FROM code_examples WHERE id IN (%s)`, placeholders)
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e CodeExample
		if err := rows.Scan(&e.ID, &e.SourceID, &e.URL, &e.Code, &e.Language, &e.Summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		result[e.ID] = &e
	}
	return result, rows.Err()
}

func (m *sqliteMetadata) codeExampleIDsByURL(ctx context.Context, url string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM code_examples WHERE url = ?`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (m *sqliteMetadata) deleteCodeExamples(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM code_examples WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *sqliteMetadata) upsertSource(ctx context.Context, s *Source) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sources (source_id, summary, total_words, chunk_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			summary = excluded.summary, total_words = excluded.total_words,
			chunk_count = excluded.chunk_count, updated_at = excluded.updated_at
	`, s.SourceID, s.Summary, s.TotalWords, s.ChunkCount, s.UpdatedAt)
	return err
}

func (m *sqliteMetadata) getSources(ctx context.Context) ([]*Source, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT source_id, summary, total_words, chunk_count, updated_at FROM sources ORDER BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.SourceID, &s.Summary, &s.TotalWords, &s.ChunkCount, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, &s)
	}
	return sources, rows.Err()
}

// recomputeSourceAggregate regenerates a source's summary fields from its
// current chunk set rather than appending to a running total, so
// total_words always matches what's actually stored (spec.md §9 open
// question: summaries are regenerated, not accumulated).
func (m *sqliteMetadata) recomputeSourceAggregate(ctx context.Context, sourceID string) (*Source, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(content) - LENGTH(REPLACE(content, ' ', '')) + 1), 0)
		FROM chunks WHERE source_id = ?
	`, sourceID)

	var chunkCount, totalWords int
	if err := row.Scan(&chunkCount, &totalWords); err != nil {
		return nil, fmt.Errorf("recompute source aggregate: %w", err)
	}

	return &Source{
		SourceID:   sourceID,
		TotalWords: totalWords,
		ChunkCount: chunkCount,
		UpdatedAt:  time.Now(),
	}, nil
}

func (m *sqliteMetadata) close() error {
	return m.db.Close()
}
