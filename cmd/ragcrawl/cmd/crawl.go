package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/ingest"
	"github.com/Aman-CERP/ragcrawl/internal/output"
)

func newCrawlCmd() *cobra.Command {
	var recursive bool
	var rawMarkdown bool
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "crawl URL [URL...]",
		Short: "Fetch, chunk, embed, and store one or more URLs",
		Long: `Drive the same ingestion pipeline scrape_urls and smart_crawl_url expose
over MCP, from the command line. Useful for pre-warming an index or
debugging ingestion without an MCP client attached.

With --recursive, only the first URL is used and links are followed up to
the configured max depth (smart_crawl_url's behavior); otherwise every URL
given is ingested independently (scrape_urls' behavior).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCrawl(ctx, cmd, args, recursive, rawMarkdown, maxConcurrent)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Follow same-site links from the first URL")
	cmd.Flags().BoolVar(&rawMarkdown, "raw", false, "Print fetched markdown instead of a summary")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Override configured crawl concurrency")

	return cmd
}

func runCrawl(ctx context.Context, cmd *cobra.Command, urls []string, recursive, rawMarkdown bool, maxConcurrent int) error {
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

	mode := ingest.ModeBatch
	if recursive {
		mode = ingest.ModeRecursive
		urls = urls[:1]
	} else if len(urls) == 1 {
		mode = ingest.ModeSingle
	}

	out := output.New(cmd.OutOrStdout())
	report, err := deps.Pipeline.Run(ctx, ingest.Request{
		URLs:                       urls,
		Mode:                       mode,
		ReturnRawMarkdown:          rawMarkdown,
		ExtractCodeExamples:        cfg.Features.AgenticRAG,
		EnableContextualEmbeddings: cfg.Features.ContextualEmbeddings,
		MaxConcurrent:              maxConcurrent,
	})
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	for _, r := range report.Results {
		if !r.OK {
			out.Status("FAIL", fmt.Sprintf("%s: %s", r.URL, r.Error))
			continue
		}
		if rawMarkdown {
			out.Status("", r.Markdown)
			continue
		}
		out.Status("OK", fmt.Sprintf("%s: %d chunks, %d code examples", r.URL, r.ChunksWritten, r.CodeExamplesWritten))
	}
	return nil
}
