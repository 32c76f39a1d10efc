// Package config loads ragcrawl's configuration from defaults, an optional
// YAML file, and process environment variables, in that order of increasing
// precedence; a .env file is loaded into the process environment first and
// its values replace ambient ones — mirroring the teacher's layered config
// loader.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Transport selects how the MCP dispatcher accepts requests.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// VectorBackend selects which VectorStore adapter to build.
type VectorBackend string

const (
	BackendHNSW   VectorBackend = "hnsw"
	BackendPG     VectorBackend = "pgvector"
	BackendQdrant VectorBackend = "qdrant"
)

// Config is ragcrawl's full runtime configuration, mirroring spec.md §6.
type Config struct {
	Transport Transport `yaml:"transport" json:"transport"`
	Port      int       `yaml:"port" json:"port"`
	LogLevel  string    `yaml:"log_level" json:"log_level"`

	VectorDB VectorBackend `yaml:"vector_db" json:"vector_db"`

	// Connection settings, backend-specific; unused fields for the selected
	// backend are simply ignored.
	PostgresURL  string `yaml:"postgres_url" json:"postgres_url"`
	QdrantURL    string `yaml:"qdrant_url" json:"qdrant_url"`
	QdrantAPIKey string `yaml:"qdrant_api_key" json:"qdrant_api_key"`
	HNSWDataDir  string `yaml:"hnsw_data_dir" json:"hnsw_data_dir"`

	EmbeddingBaseURL string `yaml:"embedding_base_url" json:"embedding_base_url"`
	EmbeddingAPIKey  string `yaml:"embedding_api_key" json:"embedding_api_key"`
	EmbeddingModel   string `yaml:"embedding_model" json:"embedding_model"`

	RerankerBaseURL  string `yaml:"reranker_base_url" json:"reranker_base_url"`
	MetasearchURL    string `yaml:"metasearch_url" json:"metasearch_url"`
	ContextualLLMURL string `yaml:"contextual_llm_url" json:"contextual_llm_url"`
	GraphStoreURL    string `yaml:"graph_store_url" json:"graph_store_url"`

	Features Features `yaml:"features" json:"features"`
	Tuning   Tuning   `yaml:"tuning" json:"tuning"`

	// SourceDenylist names hosts search+crawl (C7) never ingests, e.g.
	// link-shorteners and non-content hosts. Hot-reloaded via fsnotify when
	// loaded from a project config file; guarded by denylistMu since
	// WatchDenylist mutates it from a background goroutine.
	SourceDenylist []string `yaml:"source_denylist" json:"source_denylist"`

	denylistMu sync.Mutex
}

// Features are the boolean feature flags from spec.md §6.
type Features struct {
	ContextualEmbeddings bool `yaml:"use_contextual_embeddings" json:"use_contextual_embeddings"`
	HybridSearch         bool `yaml:"use_hybrid_search" json:"use_hybrid_search"`
	AgenticRAG           bool `yaml:"use_agentic_rag" json:"use_agentic_rag"`
	Reranking            bool `yaml:"use_reranking" json:"use_reranking"`
	KnowledgeGraph       bool `yaml:"use_knowledge_graph" json:"use_knowledge_graph"`
}

// Tuning holds the numeric knobs from spec.md §6 plus C5's internal batch
// sizes, which have no environment variable of their own (only a YAML key)
// but are named here so every size constant in the pipeline lives in one
// place.
type Tuning struct {
	ChunkSize             int           `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap          int           `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxConcurrent         int           `yaml:"max_concurrent" json:"max_concurrent"`
	MaxDepth              int           `yaml:"max_depth" json:"max_depth"`
	EmbedBatchSize        int           `yaml:"embed_batch_size" json:"embed_batch_size"`
	UpsertBatchSize       int           `yaml:"upsert_batch_size" json:"upsert_batch_size"`
	ContextualConcurrency int           `yaml:"contextual_concurrency" json:"contextual_concurrency"`
	MinCodeBlockChars     int           `yaml:"min_code_block_chars" json:"min_code_block_chars"`
	SurroundingContextLen int           `yaml:"surrounding_context_chars" json:"surrounding_context_chars"`
	RequestTimeout        time.Duration `yaml:"request_timeout" json:"request_timeout"`
	EmbeddingDimensions   int           `yaml:"embedding_dimensions" json:"embedding_dimensions"`
}

// New returns a Config populated with spec.md's reference defaults.
func New() *Config {
	return &Config{
		Transport: TransportStdio,
		Port:      8051,
		LogLevel:  "info",
		VectorDB:  BackendHNSW,

		HNSWDataDir: defaultDataDir(),

		EmbeddingBaseURL: "http://localhost:11434/v1",
		EmbeddingModel:   "text-embedding-3-small",

		Features: Features{
			ContextualEmbeddings: false,
			HybridSearch:         true,
			AgenticRAG:           false,
			Reranking:            false,
			KnowledgeGraph:       false,
		},
		Tuning: Tuning{
			ChunkSize:             5000,
			ChunkOverlap:          200,
			MaxConcurrent:         10,
			MaxDepth:              3,
			EmbedBatchSize:        32,
			UpsertBatchSize:       100,
			ContextualConcurrency: 4,
			MinCodeBlockChars:     300,
			SurroundingContextLen: 500,
			RequestTimeout:        30 * time.Second,
			EmbeddingDimensions:   1536,
		},
		SourceDenylist: []string{
			"google.com", "bing.com", "duckduckgo.com", "youtube.com",
		},
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragcrawl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ragcrawl")
	}
	return filepath.Join(home, ".ragcrawl")
}

// Load builds a Config applying, in order of increasing precedence:
//  1. New()'s hardcoded defaults
//  2. a YAML file at yamlPath, if it exists
//  3. process environment variables (TRANSPORT, PORT, VECTOR_DB, the
//     backend URL/key vars, the USE_* feature flags, CHUNK_SIZE,
//     MAX_CONCURRENT, MAX_DEPTH, EMBED_BATCH_SIZE), after a .env file in
//     dir, if present, has been loaded with Overload so its values replace
//     whatever was already in the process environment
//     (spec.md §6: file values MUST override ambient environment)
func Load(dir, yamlPath string) (*Config, error) {
	cfg := New()

	if yamlPath != "" {
		if _, err := os.Stat(yamlPath); err == nil {
			if err := cfg.mergeYAML(yamlPath); err != nil {
				return nil, err
			}
		}
	}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Overload(envPath); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TRANSPORT"); v != "" {
		c.Transport = Transport(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("VECTOR_DB"); v != "" {
		c.VectorDB = VectorBackend(v)
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		c.PostgresURL = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.QdrantURL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.QdrantAPIKey = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		c.EmbeddingBaseURL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		c.EmbeddingAPIKey = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.EmbeddingModel = v
	}
	if v := os.Getenv("RERANKER_BASE_URL"); v != "" {
		c.RerankerBaseURL = v
	}
	if v := os.Getenv("METASEARCH_URL"); v != "" {
		c.MetasearchURL = v
	}
	if v := os.Getenv("GRAPH_STORE_URL"); v != "" {
		c.GraphStoreURL = v
	}

	c.Features.ContextualEmbeddings = envBool("USE_CONTEXTUAL_EMBEDDINGS", c.Features.ContextualEmbeddings)
	c.Features.HybridSearch = envBool("USE_HYBRID_SEARCH", c.Features.HybridSearch)
	c.Features.AgenticRAG = envBool("USE_AGENTIC_RAG", c.Features.AgenticRAG)
	c.Features.Reranking = envBool("USE_RERANKING", c.Features.Reranking)
	c.Features.KnowledgeGraph = envBool("USE_KNOWLEDGE_GRAPH", c.Features.KnowledgeGraph)

	c.Tuning.ChunkSize = envInt("CHUNK_SIZE", c.Tuning.ChunkSize)
	c.Tuning.MaxConcurrent = envInt("MAX_CONCURRENT", c.Tuning.MaxConcurrent)
	c.Tuning.MaxDepth = envInt("MAX_DEPTH", c.Tuning.MaxDepth)
	c.Tuning.EmbedBatchSize = envInt("EMBED_BATCH_SIZE", c.Tuning.EmbedBatchSize)
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("invalid transport %q: must be %q or %q", c.Transport, TransportStdio, TransportHTTP)
	}
	if c.Transport == TransportHTTP && c.Port <= 0 {
		return fmt.Errorf("http transport requires a positive PORT, got %d", c.Port)
	}
	switch c.VectorDB {
	case BackendHNSW, BackendPG, BackendQdrant:
	default:
		return fmt.Errorf("invalid VECTOR_DB %q", c.VectorDB)
	}
	if c.VectorDB == BackendPG && c.PostgresURL == "" {
		return fmt.Errorf("VECTOR_DB=pgvector requires POSTGRES_URL")
	}
	if c.Tuning.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	return nil
}
