// Package mcpserver implements the nine canonical MCP tools over the
// crawl/ingest/retrieval/search/validate stack, grounded on the teacher's
// internal/mcp server (tool registration via mcp.AddTool, stdio/http
// transport dispatch, structured error mapping at the tool boundary) but
// with every tool replaced to match the web-content-RAG tool table instead
// of the teacher's local-codebase search tools.
package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/ragcrawl/internal/config"
	"github.com/Aman-CERP/ragcrawl/internal/crawl"
	"github.com/Aman-CERP/ragcrawl/internal/embed"
	"github.com/Aman-CERP/ragcrawl/internal/graph"
	"github.com/Aman-CERP/ragcrawl/internal/ingest"
	"github.com/Aman-CERP/ragcrawl/internal/retrieval"
	"github.com/Aman-CERP/ragcrawl/internal/searchweb"
	"github.com/Aman-CERP/ragcrawl/internal/store"
	"github.com/Aman-CERP/ragcrawl/internal/validate"
	"github.com/Aman-CERP/ragcrawl/pkg/version"
)

// Deps bundles the process-wide singletons every tool handler dispatches
// through — the crawler driver, embedding client, vector store handle, and
// graph store handle, per spec.md §4.9's single-flight rule. Server itself
// holds no other mutable state.
type Deps struct {
	Config     *config.Config
	Crawler    *crawl.Crawler
	Embedder   embed.Embedder
	Store      store.Store
	Pipeline   *ingest.Pipeline
	Retrieval  *retrieval.Engine
	Search     *searchweb.Composite
	GraphStore *graph.Store
	Ingester   *graph.RepoIngester
	Validator  *validate.Validator

	Logger *slog.Logger
}

// toolEntry is one tool's dispatch record, shared by the stdio transport
// (via mcp.AddTool, below) and the hand-rolled http transport's tools/list
// and tools/call handling in http.go — both read from the same registry so
// the two transports can never drift on which tools exist.
type toolEntry struct {
	Name        string
	Description string
	Call        func(ctx context.Context, params json.RawMessage) (any, error)
}

// Server is the MCP dispatcher: it registers the nine canonical tools and
// runs the stdio or http transport loop.
type Server struct {
	mcp     *mcp.Server
	deps    Deps
	logger  *slog.Logger
	entries []toolEntry
	mu      sync.RWMutex
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger,
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "ragcrawl",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s
}

// MCPServer exposes the underlying *mcp.Server, e.g. for tests that drive it
// through an in-process transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) version() string {
	return version.Version
}

func (s *Server) registerTools() {
	registerTool(s, "scrape_urls",
		"Fetch one or more URLs, convert to markdown, chunk, embed, and store them for retrieval. Accepts a single URL or a list.",
		s.handleScrapeURLs)

	registerTool(s, "smart_crawl_url",
		"Crawl a site starting at one URL, following same-site links up to max_depth, ingesting every page found.",
		s.handleSmartCrawlURL)

	registerTool(s, "get_available_sources",
		"List every ingested source (domain or repository) with its summary and chunk count.",
		s.handleGetAvailableSources)

	registerTool(s, "perform_rag_query",
		"Run a retrieval-augmented query against ingested content: embed the query, search the vector store, optionally merge keyword search and rerank.",
		s.handlePerformRAGQuery)

	registerTool(s, "search",
		"Search the web via a metasearch backend, ingest the results, and return either raw markdown or ranked chunks grouped by URL.",
		s.handleSearch)

	registerTool(s, "search_code_examples",
		"Run perform_rag_query against the code-example collection instead of prose chunks. Only available when code-example extraction is enabled.",
		s.handleSearchCodeExamples)

	registerTool(s, "parse_github_repository",
		"Shallow-clone a GitHub repository and parse its source into the knowledge graph (files, classes, methods, functions, attributes, parameters).",
		s.handleParseGithubRepository)

	registerTool(s, "check_ai_script_hallucinations",
		"Validate a script's external symbol uses (imports, calls, constructions) against the knowledge graph and code-example index, flagging likely hallucinations.",
		s.handleCheckHallucinations)

	registerTool(s, "query_knowledge_graph",
		"Run a structured command against the knowledge graph: 'repos' lists ingested repositories, 'classes <repo>' lists a repository's classes, etc.",
		s.handleQueryKnowledgeGraph)

	s.logger.Info("mcp tools registered", slog.Int("count", len(s.entries)))
}

// registerTool wires one tool into both the SDK-driven stdio transport (via
// mcp.AddTool) and this package's own tool registry, which the hand-rolled
// http transport's tools/list and tools/call dispatch against. handler is
// the same typed function either caller ends up invoking.
func registerTool[In, Out any](s *Server, name, description string, handler func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error)) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: description}, handler)

	s.entries = append(s.entries, toolEntry{
		Name:        name,
		Description: description,
		Call: func(ctx context.Context, params json.RawMessage) (any, error) {
			var in In
			if len(params) > 0 {
				if err := json.Unmarshal(params, &in); err != nil {
					return nil, fmt.Errorf("invalid params for %s: %w", name, err)
				}
			}
			_, out, err := handler(ctx, nil, in)
			return out, err
		},
	})
}

// Serve runs the given transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport config.Transport, addr string) error {
	switch transport {
	case config.TransportStdio:
		s.logger.Debug("starting stdio transport")
		return s.mcp.Run(ctx, &mcp.StdioTransport{})
	case config.TransportHTTP:
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s", transport)
	}
}

func generateCorrelationID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
