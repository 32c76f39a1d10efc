// Package store provides the persistence layer for ingested content: vector
// search (HNSW, pgvector or Qdrant), keyword search (Bleve, Postgres ILIKE or
// a Qdrant payload filter), and metadata for sources, chunks, and extracted
// code examples.
package store

import (
	"context"
	"fmt"
	"time"
)

// SourceChunk is a retrievable unit of ingested content: one markdown
// section, one oversized-section split, or one standalone paragraph.
type SourceChunk struct {
	ID         string            // content-addressable, see chunk.generateChunkID
	SourceID   string            // natural key: domain or repo identifier
	URL        string            // page the chunk was extracted from
	Content    string            // chunk text as embedded
	HeaderPath string            // "H1 > H2 > H3" breadcrumb, empty if none
	ChunkIndex int               // position within the source page, 0-indexed
	Metadata   map[string]string
	CreatedAt  time.Time
}

// CodeExample is a fenced code block pulled out during ingestion and
// embedded/searched separately from prose chunks.
type CodeExample struct {
	ID        string
	SourceID  string
	URL       string
	Code      string
	Language  string
	Summary   string // short natural-language description, generated at ingest time
	CreatedAt time.Time
}

// Source is the registry entry for one ingested domain or repository: an
// aggregate summary regenerated on every ingest that touches it.
type Source struct {
	SourceID    string // e.g. "docs.example.com" or "github.com/owner/repo"
	Summary     string
	TotalWords  int
	ChunkCount  int
	UpdatedAt   time.Time
}

// SearchQuery carries every parameter a vector or keyword search can take.
// FilterMetadata is a named struct field, not a stringly-keyed option map,
// so a caller can't typo the filter key the way an untyped map allows.
type SearchQuery struct {
	QueryText      string
	QueryVector    []float32
	SourceID       string // restricts results to one source when non-empty
	Limit          int
	FilterMetadata map[string]string
}

// ScoredChunk pairs a stored chunk with its retrieval score. Score meaning
// depends on the search method and adapter. Vector search: (1+cos)/2 on the
// in-process HNSW adapter, cosine similarity on pgvector and Qdrant. Keyword
// search: Bleve's relevance score in-process, a constant 1.0 on pgvector and
// Qdrant. Hybrid search: the RRF-fused rank score.
type ScoredChunk struct {
	Chunk *SourceChunk
	Score float32
}

// ScoredCodeExample mirrors ScoredChunk for the code-example index.
type ScoredCodeExample struct {
	Example *CodeExample
	Score   float32
}

// Store is the vector-store-agnostic persistence contract every adapter
// (in-process HNSW+SQLite+Bleve, PostgreSQL+pgvector, or Qdrant) implements.
type Store interface {
	Initialize(ctx context.Context, dimensions int) error

	UpsertChunks(ctx context.Context, chunks []*SourceChunk, vectors [][]float32) error
	DeleteByURL(ctx context.Context, url string) error
	VectorSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error)
	KeywordSearch(ctx context.Context, q SearchQuery) ([]*ScoredChunk, error)

	UpsertCodeExamples(ctx context.Context, examples []*CodeExample, vectors [][]float32) error
	DeleteCodeExamplesByURL(ctx context.Context, url string) error
	VectorSearchCodeExamples(ctx context.Context, q SearchQuery) ([]*ScoredCodeExample, error)

	GetSources(ctx context.Context) ([]*Source, error)
	UpsertSource(ctx context.Context, source *Source) error

	Close() error
}

// ContentType labels the kind of content a chunk or example came from. Kept
// distinct from the chunk package's ContentType so the store doesn't import
// internal/chunk just for an enum.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeCode     ContentType = "code"
	ContentTypeText     ContentType = "text"
)

// VectorResult represents a single vector search result keyed by the ID the
// vector was added under; LocalStore adds chunk and code-example IDs directly.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures an in-process HNSW graph.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" (cosine) or "l2" (euclidean)
	M              int    // max connections per layer
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for a given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// VectorStore is the low-level vector index contract; HNSWStore is the only
// in-process implementation. pgstore talks to pgvector directly through SQL
// instead of going through this interface.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// Document is a unit of content handed to the keyword (BM25) index.
type Document struct {
	ID      string
	Content string
}

// BM25Result is a single keyword search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats summarizes a keyword index.
type IndexStats struct {
	DocumentCount int
}

// BM25Config configures the keyword index's tokenizer.
type BM25Config struct {
	StopWords []string
}

// DefaultBM25Config returns the default stop word set for prose+code content.
func DefaultBM25Config() BM25Config {
	return BM25Config{StopWords: DefaultCodeStopWords}
}

// DefaultCodeStopWords filters common programming keywords out of the
// keyword index so they don't dominate matches on code examples.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// BM25Index provides keyword search over Document content.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Close() error
}

// ErrDimensionMismatch indicates a query or insert vector doesn't match the
// dimension the store was initialized with.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index expects %d, got %d", e.Expected, e.Got)
}
