// Package cmd provides the CLI commands for ragcrawl.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/logging"
	"github.com/Aman-CERP/ragcrawl/pkg/version"
)

var (
	configPath string
	debugMode  bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the ragcrawl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragcrawl",
		Short: "Retrieval-augmented web crawl/ingest MCP server",
		Long: `ragcrawl crawls and ingests web content into a local or remote vector
store, then exposes it to AI coding assistants over the Model Context
Protocol: scrape_urls, smart_crawl_url, perform_rag_query, search, and the
rest of the nine-tool surface.

Run 'ragcrawl serve' to start the MCP server over stdio (the default
transport MCP clients expect), or 'ragcrawl serve --transport http' to
expose the same tools over HTTP JSON-RPC.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("ragcrawl version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: ./ragcrawl.yaml if present)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newParseRepoCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newGraphCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
