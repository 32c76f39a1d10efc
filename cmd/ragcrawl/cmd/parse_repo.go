package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/graph"
)

func newParseRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse-repo REPO_URL",
		Short: "Shallow-clone a GitHub repository into the knowledge graph",
		Long: `Drive the same repository ingestion parse_github_repository exposes over
MCP: shallow-clone REPO_URL and parse its source into the knowledge graph
(files, classes, methods, functions, attributes, parameters).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runParseRepo(ctx, cmd, args[0])
		},
	}
	return cmd
}

func runParseRepo(ctx context.Context, cmd *cobra.Command, repoURL string) error {
	graphStore := graph.NewStore()
	ingester := graph.NewRepoIngester(graphStore)

	name, files, err := ingester.IngestRepository(ctx, repoURL)
	if err != nil {
		return fmt.Errorf("ingest repository: %w", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "ingested %s: %d files processed\n", name, files)
	return err
}
