package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Aman-CERP/ragcrawl/internal/chunk"
	"github.com/Aman-CERP/ragcrawl/internal/config"
	"github.com/Aman-CERP/ragcrawl/internal/crawl"
	"github.com/Aman-CERP/ragcrawl/internal/embed"
	"github.com/Aman-CERP/ragcrawl/internal/graph"
	"github.com/Aman-CERP/ragcrawl/internal/ingest"
	"github.com/Aman-CERP/ragcrawl/internal/mcpserver"
	"github.com/Aman-CERP/ragcrawl/internal/retrieval"
	"github.com/Aman-CERP/ragcrawl/internal/searchweb"
	"github.com/Aman-CERP/ragcrawl/internal/store"
	"github.com/Aman-CERP/ragcrawl/internal/validate"
)

// loadConfig resolves the YAML config path (the --config flag, or
// ./ragcrawl.yaml in the current directory when unset) and layers in
// .env/process environment overrides per config.Load's precedence order.
func loadConfig() (*config.Config, string, error) {
	dir := "."
	yamlPath := configPath
	if yamlPath == "" {
		candidate := filepath.Join(dir, "ragcrawl.yaml")
		if fileExists(candidate) {
			yamlPath = candidate
		}
	}
	cfg, err := config.Load(dir, yamlPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, yamlPath, nil
}

// buildDeps wires every process-wide collaborator mcpserver.Deps needs
// around an already-constructed embedder and store, so callers that need
// to reachability-check those two first (serve's preflight pass) never end
// up building a second, throwaway instance of either.
func buildDeps(cfg *config.Config, embedder embed.Embedder, st store.Store, logger *slog.Logger) (mcpserver.Deps, error) {
	crawler := crawl.New(crawl.Config{
		MaxConcurrent:  cfg.Tuning.MaxConcurrent,
		MaxDepth:       cfg.Tuning.MaxDepth,
		RequestTimeout: cfg.Tuning.RequestTimeout,
	})

	var contextualizer ingest.Contextualizer
	var summarizer ingest.Summarizer
	if cfg.Features.ContextualEmbeddings && cfg.ContextualLLMURL != "" {
		contextualizer = ingest.NewLLMContextualizer(cfg.ContextualLLMURL, "", cfg.Tuning.RequestTimeout)
	}
	if cfg.Features.AgenticRAG && cfg.ContextualLLMURL != "" {
		summarizer = ingest.NewLLMSummarizer(cfg.ContextualLLMURL, "", cfg.Tuning.RequestTimeout)
	}

	pipeline := ingest.New(ingest.Deps{
		Crawler:               crawler,
		Chunker:               chunk.NewMarkdownChunkerWithOptions(chunk.MarkdownChunkerOptions{ChunkSize: cfg.Tuning.ChunkSize, Overlap: cfg.Tuning.ChunkOverlap}),
		Embedder:              embedder,
		Store:                 st,
		Contextualizer:        contextualizer,
		Summarizer:            summarizer,
		EmbedBatchSize:        cfg.Tuning.EmbedBatchSize,
		UpsertBatchSize:       cfg.Tuning.UpsertBatchSize,
		ContextualConcurrency: cfg.Tuning.ContextualConcurrency,
		MinCodeBlockChars:     cfg.Tuning.MinCodeBlockChars,
		SurroundingContextLen: cfg.Tuning.SurroundingContextLen,
		Logger:                logger,
	})

	var reranker retrieval.Reranker
	if cfg.Features.Reranking && cfg.RerankerBaseURL != "" {
		reranker = retrieval.NewHTTPReranker(cfg.RerankerBaseURL, cfg.Tuning.RequestTimeout)
	}
	retrievalEngine := retrieval.New(embedder, st, reranker)

	zlog := zerolog.New(zerologWriter{logger}).With().Timestamp().Logger()
	composite := &searchweb.Composite{
		Metasearch: searchweb.NewMetasearchClient(cfg.MetasearchURL, cfg.Tuning.RequestTimeout, zlog),
		Pipeline:   pipeline,
		Retrieval:  retrievalEngine,
		Denylist:   cfg.Denylist(),
		Logger:     zlog,
	}

	graphStore := graph.NewStore()
	ingester := graph.NewRepoIngester(graphStore)
	checker := validate.NewChecker(graphStore, embedder, st)
	validator := validate.NewValidator(checker)

	return mcpserver.Deps{
		Config:     cfg,
		Crawler:    crawler,
		Embedder:   embedder,
		Store:      st,
		Pipeline:   pipeline,
		Retrieval:  retrievalEngine,
		Search:     composite,
		GraphStore: graphStore,
		Ingester:   ingester,
		Validator:  validator,
		Logger:     logger,
	}, nil
}

func buildEmbedder(cfg *config.Config, logger *slog.Logger) embed.Embedder {
	inner := embed.NewHTTPClient(
		cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.Tuning.EmbeddingDimensions,
		embed.WithBatchSize(cfg.Tuning.EmbedBatchSize),
		embed.WithTimeout(cfg.Tuning.RequestTimeout),
		embed.WithLogger(logger),
	)
	return embed.NewCachedEmbedderWithDefaults(inner)
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.VectorDB {
	case config.BackendHNSW:
		return store.NewLocalStore(cfg.HNSWDataDir), nil
	case config.BackendPG:
		return store.NewPGStore(ctx, cfg.PostgresURL)
	case config.BackendQdrant:
		host, port := parseQdrantAddr(cfg.QdrantURL)
		return store.NewQdrantStore(store.QdrantStoreConfig{
			Host:   host,
			Port:   port,
			APIKey: cfg.QdrantAPIKey,
		})
	default:
		return nil, fmt.Errorf("unknown VECTOR_DB %q", cfg.VectorDB)
	}
}

// buildInitializedStore builds the configured Store adapter and initializes
// it at the configured embedding dimension. Used by CLI commands that skip
// serve's separate preflight reachability pass.
func buildInitializedStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Initialize(ctx, cfg.Tuning.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("initialize vector store: %w", err)
	}
	return st, nil
}

// parseQdrantAddr splits a "host:port" QdrantURL into its parts, defaulting
// the port to Qdrant's standard gRPC port (6334) when absent or malformed.
func parseQdrantAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6334
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6334
	}
	return host, port
}

// zerologWriter adapts an *slog.Logger as an io.Writer for zerolog's output,
// so searchweb's zerolog-based client and the rest of ragcrawl's
// slog-based logging end up in the same sink instead of two independent
// log streams.
type zerologWriter struct {
	logger *slog.Logger
}

func (w zerologWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(p))
	return len(p), nil
}
