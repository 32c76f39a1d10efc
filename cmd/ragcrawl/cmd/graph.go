package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragcrawl/internal/graph"
	"github.com/Aman-CERP/ragcrawl/internal/output"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query-graph REPO_URL COMMAND...",
		Short: "Clone a repository and run a query_knowledge_graph-style command against it",
		Long: `Shallow-clone REPO_URL, ingest it into a fresh in-memory knowledge graph,
and run one structured command against it — the same command grammar
query_knowledge_graph accepts over MCP ('repos', 'files <repo>',
'classes <repo>', 'functions <repo>', 'methods <repo> <class>').

Unlike the MCP server, each CLI invocation builds its own graph from
scratch: there's no long-lived process to share it with across commands.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			graphStore := graph.NewStore()
			ingester := graph.NewRepoIngester(graphStore)

			repoName, files, err := ingester.IngestRepository(ctx, args[0])
			if err != nil {
				return fmt.Errorf("ingest repository: %w", err)
			}

			out := output.New(cmd.OutOrStdout())
			out.Status("", fmt.Sprintf("ingested %s (%d files)", repoName, files))

			return runGraphQuery(cmd, graphStore, strings.Join(args[1:], " "))
		},
	}
	return cmd
}

func runGraphQuery(cmd *cobra.Command, graphStore *graph.Store, command string) error {
	out := output.New(cmd.OutOrStdout())
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("command is required")
	}

	switch fields[0] {
	case "repos":
		for _, n := range graphStore.NodesByLabel(graph.LabelRepository) {
			out.Status("", n.Name)
		}
	case "files":
		if len(fields) < 2 {
			return fmt.Errorf("files requires a repository name")
		}
		repo, ok := graphStore.RepositoryNode(fields[1])
		if !ok {
			return fmt.Errorf("repository not found: %s", fields[1])
		}
		for _, n := range graphStore.Children(repo.ID, graph.EdgeContains) {
			out.Status("", n.Name)
		}
	case "classes", "functions":
		if len(fields) < 2 {
			return fmt.Errorf("%s requires a repository name", fields[0])
		}
		repo, ok := graphStore.RepositoryNode(fields[1])
		if !ok {
			return fmt.Errorf("repository not found: %s", fields[1])
		}
		wantLabel := graph.LabelClass
		if fields[0] == "functions" {
			wantLabel = graph.LabelFunction
		}
		for _, file := range graphStore.Children(repo.ID, graph.EdgeContains) {
			for _, def := range graphStore.Children(file.ID, graph.EdgeDefines) {
				if def.Label == wantLabel {
					out.Status("", file.Name+": "+def.Name)
				}
			}
		}
	case "methods":
		if len(fields) < 3 {
			return fmt.Errorf("methods requires a repository and a class name")
		}
		var class *graph.Node
		for _, n := range graphStore.FindByName(graph.LabelClass, fields[2]) {
			class = n
			break
		}
		if class == nil {
			return fmt.Errorf("class not found: %s", fields[2])
		}
		for _, m := range graphStore.Children(class.ID, graph.EdgeHasMethod) {
			out.Status("", m.Name)
		}
	default:
		return fmt.Errorf("unknown command: %s", fields[0])
	}
	return nil
}
