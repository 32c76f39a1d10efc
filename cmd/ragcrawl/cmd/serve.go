package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/config"
	"github.com/Aman-CERP/ragcrawl/internal/mcpserver"
	"github.com/Aman-CERP/ragcrawl/internal/preflight"
)

func newServeCmd() *cobra.Command {
	var transport string
	var port int
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server, exposing the nine-tool surface (scrape_urls,
smart_crawl_url, get_available_sources, perform_rag_query, search,
search_code_examples, parse_github_repository,
check_ai_script_hallucinations, query_knowledge_graph) over stdio or HTTP.

stdio is the default transport MCP clients (Claude Code, Cursor, etc.)
expect: stdout carries line-delimited JSON-RPC exclusively, so every log
line goes to stderr instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport, port, skipCheck)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().IntVar(&port, "port", 0, "Port for http transport (default: config Port)")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip backend reachability checks at startup")

	return cmd
}

func runServe(ctx context.Context, transportFlag string, port int, skipCheck bool) error {
	cfg, yamlPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if transportFlag != "" {
		cfg.Transport = config.Transport(transportFlag)
	}
	if port > 0 {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.Default()

	embedder := buildEmbedder(cfg, logger)
	st, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}
	if err := st.Initialize(ctx, cfg.Tuning.EmbeddingDimensions); err != nil {
		return fmt.Errorf("initialize vector store: %w", err)
	}

	if !skipCheck {
		checker := preflight.New()
		results := checker.RunBackendChecks(ctx, embedder, st, cfg.Tuning.EmbeddingDimensions)
		if checker.HasCriticalFailures(results) {
			for _, r := range results {
				if r.IsCritical() {
					logger.Error("backend check failed", slog.String("check", r.Name), slog.String("message", r.Message))
				}
			}
			return fmt.Errorf("backend checks failed, run 'ragcrawl doctor' for diagnostics")
		}
	}

	deps, err := buildDeps(cfg, embedder, st, logger)
	if err != nil {
		return err
	}

	if yamlPath != "" {
		go func() {
			if err := cfg.WatchDenylist(ctx, yamlPath, logger); err != nil && ctx.Err() == nil {
				logger.Warn("denylist watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	server := mcpserver.NewServer(deps)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("starting ragcrawl", slog.String("transport", string(cfg.Transport)), slog.String("vector_db", string(cfg.VectorDB)))
	return server.Serve(ctx, cfg.Transport, addr)
}
