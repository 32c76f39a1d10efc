package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/output"
	"github.com/Aman-CERP/ragcrawl/internal/retrieval"
	"github.com/Aman-CERP/ragcrawl/internal/searchweb"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var source string
	var web bool

	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Query ingested content, or the web, from the command line",
		Long: `Run perform_rag_query against already-ingested content, the same
retrieval path the MCP tool uses. With --web, run the search MCP tool
instead: query a metasearch backend, ingest the results, and print ranked
chunks grouped by URL.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			query := strings.Join(args, " ")
			if web {
				return runWebSearch(ctx, cmd, query, limit)
			}
			return runRAGQuery(ctx, cmd, query, limit, source)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().StringVar(&source, "source", "", "Restrict to one ingested source")
	cmd.Flags().BoolVar(&web, "web", false, "Search the web and ingest results instead of querying local content")

	return cmd
}

func runRAGQuery(ctx context.Context, cmd *cobra.Command, query string, limit int, source string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()
	embedder := buildEmbedder(cfg, logger)
	st, err := buildInitializedStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var reranker retrieval.Reranker
	if cfg.Features.Reranking && cfg.RerankerBaseURL != "" {
		reranker = retrieval.NewHTTPReranker(cfg.RerankerBaseURL, cfg.Tuning.RequestTimeout)
	}
	engine := retrieval.New(embedder, st, reranker)

	mode := retrieval.ModeVector
	switch {
	case cfg.Features.Reranking:
		mode = retrieval.ModeRerank
	case cfg.Features.HybridSearch:
		mode = retrieval.ModeHybrid
	}

	results, err := engine.Query(ctx, retrieval.Query{Text: query, K: limit, SourceID: source, Mode: mode})
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	for _, r := range results {
		out.Status("", fmt.Sprintf("[%.4f] %s#%d\n    %s", r.Score, r.URL, r.ChunkIndex, truncate(r.Content, 200)))
	}
	return nil
}

func runWebSearch(ctx context.Context, cmd *cobra.Command, query string, limit int) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()
	embedder := buildEmbedder(cfg, logger)
	st, err := buildInitializedStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	deps, err := buildDeps(cfg, embedder, st, logger)
	if err != nil {
		return err
	}

	mode := retrieval.ModeVector
	if cfg.Features.HybridSearch {
		mode = retrieval.ModeHybrid
	}

	resp, err := deps.Search.Search(ctx, searchweb.Request{Query: query, NumResults: limit, Mode: mode})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	for _, g := range resp.Groups {
		out.Status("", g.URL)
		for _, r := range g.Results {
			out.Status("", fmt.Sprintf("    [%.4f] %s", r.Score, truncate(r.Content, 200)))
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
