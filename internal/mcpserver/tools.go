package mcpserver

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/ragcrawl/internal/errs"
	"github.com/Aman-CERP/ragcrawl/internal/graph"
	"github.com/Aman-CERP/ragcrawl/internal/ingest"
	"github.com/Aman-CERP/ragcrawl/internal/retrieval"
	"github.com/Aman-CERP/ragcrawl/internal/searchweb"
	"github.com/Aman-CERP/ragcrawl/internal/store"
	"github.com/Aman-CERP/ragcrawl/internal/validate"
)

// handleScrapeURLs implements scrape_urls: fetch, chunk, embed, and store
// one or more URLs, per spec.md §4.5.
func (s *Server) handleScrapeURLs(ctx context.Context, _ *mcp.CallToolRequest, in ScrapeURLsInput) (*mcp.CallToolResult, ScrapeURLsOutput, error) {
	urls := in.URL.Strings()
	if len(urls) == 0 {
		return nil, ScrapeURLsOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "url is required", nil))}, nil
	}

	mode := ingest.ModeSingle
	if len(urls) > 1 {
		mode = ingest.ModeBatch
	}

	report, err := s.deps.Pipeline.Run(ctx, ingest.Request{
		URLs:                       urls,
		Mode:                       mode,
		ReturnRawMarkdown:          in.ReturnRawMarkdown,
		ExtractCodeExamples:        s.deps.Config.Features.AgenticRAG,
		EnableContextualEmbeddings: s.deps.Config.Features.ContextualEmbeddings,
		MaxConcurrent:              in.MaxConcurrent,
	})
	if err != nil {
		return nil, ScrapeURLsOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	out := ScrapeURLsOutput{Status: Status{Success: true}}
	for _, r := range report.Results {
		out.Results = append(out.Results, URLOutcome{
			URL:                 r.URL,
			Success:             r.OK,
			Error:               r.Error,
			ChunksWritten:       r.ChunksWritten,
			CodeExamplesWritten: r.CodeExamplesWritten,
			Markdown:            r.Markdown,
		})
	}
	return nil, out, nil
}

// handleSmartCrawlURL implements smart_crawl_url: recursive same-site crawl
// starting at one seed URL, per spec.md §4.5's recursive mode.
func (s *Server) handleSmartCrawlURL(ctx context.Context, _ *mcp.CallToolRequest, in SmartCrawlURLInput) (*mcp.CallToolResult, SmartCrawlURLOutput, error) {
	if strings.TrimSpace(in.URL) == "" {
		return nil, SmartCrawlURLOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "url is required", nil))}, nil
	}

	report, err := s.deps.Pipeline.Run(ctx, ingest.Request{
		URLs:                       []string{in.URL},
		Mode:                       ingest.ModeRecursive,
		ExtractCodeExamples:        s.deps.Config.Features.AgenticRAG,
		EnableContextualEmbeddings: s.deps.Config.Features.ContextualEmbeddings,
		MaxConcurrent:              in.MaxConcurrent,
	})
	if err != nil {
		return nil, SmartCrawlURLOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	out := SmartCrawlURLOutput{Status: Status{Success: true}}
	for _, r := range report.Results {
		out.PagesCrawled++
		if !r.OK {
			out.PagesFailed++
			continue
		}
		out.ChunksWritten += r.ChunksWritten
		out.CodeExamplesWritten += r.CodeExamplesWritten
	}
	return nil, out, nil
}

// handleGetAvailableSources implements get_available_sources: list every
// ingested source's registry entry, per spec.md §3's source record model.
func (s *Server) handleGetAvailableSources(ctx context.Context, _ *mcp.CallToolRequest, _ GetAvailableSourcesInput) (*mcp.CallToolResult, GetAvailableSourcesOutput, error) {
	sources, err := s.deps.Store.GetSources(ctx)
	if err != nil {
		return nil, GetAvailableSourcesOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	out := GetAvailableSourcesOutput{Status: Status{Success: true}}
	for _, src := range sources {
		out.Sources = append(out.Sources, SourceOutput{
			SourceID:   src.SourceID,
			Summary:    src.Summary,
			TotalWords: src.TotalWords,
			ChunkCount: src.ChunkCount,
		})
	}
	return nil, out, nil
}

// handlePerformRAGQuery implements perform_rag_query against the prose
// chunk index, per spec.md §4.6.
func (s *Server) handlePerformRAGQuery(ctx context.Context, _ *mcp.CallToolRequest, in PerformRAGQueryInput) (*mcp.CallToolResult, PerformRAGQueryOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, PerformRAGQueryOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "query is required", nil))}, nil
	}

	results, err := s.deps.Retrieval.Query(ctx, retrieval.Query{
		Text:     in.Query,
		K:        matchCountOrDefault(in.MatchCount),
		SourceID: in.Source,
		Mode:     s.queryMode(),
	})
	if err != nil {
		return nil, PerformRAGQueryOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	out := PerformRAGQueryOutput{Status: Status{Success: true}}
	out.Results = toRankedChunks(results)
	return nil, out, nil
}

// handleSearchCodeExamples implements search_code_examples: the same
// rag_query pipeline, scoped to the code-example vector index rather than
// prose chunks. Only meaningful when code-example extraction ran at ingest
// time, per spec.md §4.6's code-example variant.
func (s *Server) handleSearchCodeExamples(ctx context.Context, _ *mcp.CallToolRequest, in PerformRAGQueryInput) (*mcp.CallToolResult, PerformRAGQueryOutput, error) {
	if !s.deps.Config.Features.AgenticRAG {
		return nil, PerformRAGQueryOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "code example extraction is disabled", nil))}, nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, PerformRAGQueryOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "query is required", nil))}, nil
	}

	vec, err := s.deps.Embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, PerformRAGQueryOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	limit := matchCountOrDefault(in.MatchCount)
	scored, err := s.deps.Store.VectorSearchCodeExamples(ctx, storeSearchQuery(vec, in.Source, limit))
	if err != nil {
		return nil, PerformRAGQueryOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	out := PerformRAGQueryOutput{Status: Status{Success: true}}
	for _, sc := range scored {
		out.Results = append(out.Results, RankedChunk{
			URL:     sc.Example.URL,
			Content: sc.Example.Code,
			Metadata: map[string]string{
				"language": sc.Example.Language,
				"summary":  sc.Example.Summary,
			},
			Score: float64(sc.Score),
		})
	}
	return nil, out, nil
}

// handleSearch implements search: metasearch, ingest results, then either
// return raw markdown or grouped retrieval results, per spec.md §4.7.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, SearchOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "query is required", nil))}, nil
	}

	resp, err := s.deps.Search.Search(ctx, searchweb.Request{
		Query:             in.Query,
		NumResults:        in.NumResults,
		MaxConcurrent:     in.MaxConcurrent,
		ReturnRawMarkdown: in.ReturnRawMarkdown,
		Mode:              s.queryMode(),
	})
	if err != nil {
		var sbe *searchweb.SearchBackendError
		if ok := asSearchBackendError(err, &sbe); ok {
			return nil, SearchOutput{Status: s.statusFor(errs.New(errs.BackendRejected, sbe.Error(), err))}, nil
		}
		return nil, SearchOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	out := SearchOutput{Status: Status{Success: true}}
	if in.ReturnRawMarkdown {
		out.Markdown = resp.Markdown
		return nil, out, nil
	}

	for _, g := range resp.Groups {
		out.Groups = append(out.Groups, SearchURLGroup{URL: g.URL, Results: toRankedChunks(g.Results)})
	}
	return nil, out, nil
}

// handleParseGithubRepository implements parse_github_repository: shallow
// clone and parse into the knowledge graph, per spec.md §4.8.
func (s *Server) handleParseGithubRepository(ctx context.Context, _ *mcp.CallToolRequest, in ParseGithubRepositoryInput) (*mcp.CallToolResult, ParseGithubRepositoryOutput, error) {
	if strings.TrimSpace(in.RepoURL) == "" {
		return nil, ParseGithubRepositoryOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "repo_url is required", nil))}, nil
	}

	repoName, filesProcessed, err := s.deps.Ingester.IngestRepository(ctx, in.RepoURL)
	if err != nil {
		return nil, ParseGithubRepositoryOutput{Status: s.statusFor(errs.Wrap(errs.BackendUnavailable, err))}, nil
	}

	return nil, ParseGithubRepositoryOutput{
		Status:          Status{Success: true},
		RepositoryName:  repoName,
		FilesProcessed:  filesProcessed,
	}, nil
}

// handleCheckHallucinations implements check_ai_script_hallucinations: read
// the script, enumerate its external symbol uses, and validate each against
// the knowledge graph and code-example index, per spec.md §4.8.
func (s *Server) handleCheckHallucinations(ctx context.Context, _ *mcp.CallToolRequest, in CheckHallucinationsInput) (*mcp.CallToolResult, CheckHallucinationsOutput, error) {
	if strings.TrimSpace(in.ScriptPath) == "" {
		return nil, CheckHallucinationsOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "script_path is required", nil))}, nil
	}

	source, err := os.ReadFile(in.ScriptPath)
	if err != nil {
		return nil, CheckHallucinationsOutput{Status: s.statusFor(errs.New(errs.NotFound, fmt.Sprintf("read %s: %v", in.ScriptPath, err), err))}, nil
	}

	mode := validate.ModeBalanced
	switch validate.Mode(in.Mode) {
	case validate.ModeFast, validate.ModeThorough:
		mode = validate.Mode(in.Mode)
	}

	report, err := s.deps.Validator.ValidateScript(ctx, source, in.ScriptPath, mode)
	if err != nil {
		return nil, CheckHallucinationsOutput{Status: s.statusFor(errs.Wrap(errs.Internal, err))}, nil
	}

	out := CheckHallucinationsOutput{
		Status:      Status{Success: true},
		OverallRisk: report.OverallRisk,
		Counts:      make(map[string]int, len(report.Counts)),
	}
	for cat, n := range report.Counts {
		out.Counts[string(cat)] = n
	}
	for _, f := range report.Findings {
		out.Findings = append(out.Findings, FindingOutput{
			Line:            f.Line,
			Kind:            string(f.Kind),
			Name:            f.Name,
			Confidence:      f.Confidence,
			Category:        string(f.Category),
			ActualSignature: f.ActualSignature,
			Suggestions:     f.Suggestions,
		})
	}
	return nil, out, nil
}

// handleQueryKnowledgeGraph implements query_knowledge_graph: a small
// command grammar over the in-memory graph store — "repos", "files <repo>",
// "classes <repo>", "functions <repo>", "methods <repo> <class>" — per
// spec.md §4.8's graph-introspection surface.
func (s *Server) handleQueryKnowledgeGraph(ctx context.Context, _ *mcp.CallToolRequest, in QueryKnowledgeGraphInput) (*mcp.CallToolResult, QueryKnowledgeGraphOutput, error) {
	fields := strings.Fields(in.Command)
	if len(fields) == 0 {
		return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "command is required", nil))}, nil
	}

	out := QueryKnowledgeGraphOutput{Status: Status{Success: true}, Command: in.Command}

	switch fields[0] {
	case "repos":
		for _, n := range s.deps.GraphStore.NodesByLabel(graph.LabelRepository) {
			out.Items = append(out.Items, n.Name)
		}

	case "files":
		if len(fields) < 2 {
			return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "files requires a repository name", nil))}, nil
		}
		repo, ok := s.deps.GraphStore.RepositoryNode(fields[1])
		if !ok {
			return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.NotFound, "repository not found: "+fields[1], nil))}, nil
		}
		for _, n := range s.deps.GraphStore.Children(repo.ID, graph.EdgeContains) {
			out.Items = append(out.Items, n.Name)
		}

	case "classes", "functions":
		if len(fields) < 2 {
			return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, fields[0]+" requires a repository name", nil))}, nil
		}
		repo, ok := s.deps.GraphStore.RepositoryNode(fields[1])
		if !ok {
			return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.NotFound, "repository not found: "+fields[1], nil))}, nil
		}
		wantLabel := graph.LabelClass
		if fields[0] == "functions" {
			wantLabel = graph.LabelFunction
		}
		for _, file := range s.deps.GraphStore.Children(repo.ID, graph.EdgeContains) {
			for _, def := range s.deps.GraphStore.Children(file.ID, graph.EdgeDefines) {
				if def.Label == wantLabel {
					out.Items = append(out.Items, file.Name+": "+def.Name)
				}
			}
		}

	case "methods":
		if len(fields) < 3 {
			return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "methods requires a repository and a class name", nil))}, nil
		}
		repo, ok := s.deps.GraphStore.RepositoryNode(fields[1])
		if !ok {
			return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.NotFound, "repository not found: "+fields[1], nil))}, nil
		}
		var class *graph.Node
		for _, file := range s.deps.GraphStore.Children(repo.ID, graph.EdgeContains) {
			for _, def := range s.deps.GraphStore.Children(file.ID, graph.EdgeDefines) {
				if def.Label == graph.LabelClass && def.Name == fields[2] {
					class = def
					break
				}
			}
			if class != nil {
				break
			}
		}
		if class == nil {
			return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.NotFound, "class not found: "+fields[2], nil))}, nil
		}
		for _, m := range s.deps.GraphStore.Children(class.ID, graph.EdgeHasMethod) {
			out.Items = append(out.Items, m.Name)
		}

	default:
		return nil, QueryKnowledgeGraphOutput{Status: s.statusFor(errs.New(errs.InvalidArgument, "unknown command: "+fields[0], nil))}, nil
	}

	return nil, out, nil
}

func matchCountOrDefault(n int) int {
	if n <= 0 {
		return 5
	}
	return n
}

func (s *Server) queryMode() retrieval.Mode {
	switch {
	case s.deps.Config.Features.Reranking:
		return retrieval.ModeRerank
	case s.deps.Config.Features.HybridSearch:
		return retrieval.ModeHybrid
	default:
		return retrieval.ModeVector
	}
}

func toRankedChunks(results []retrieval.Result) []RankedChunk {
	out := make([]RankedChunk, len(results))
	for i, r := range results {
		out[i] = RankedChunk{
			URL:         r.URL,
			ChunkIndex:  r.ChunkIndex,
			Content:     r.Content,
			Metadata:    r.Metadata,
			Score:       r.Score,
			RerankScore: r.RerankScore,
		}
	}
	return out
}

func asSearchBackendError(err error, target **searchweb.SearchBackendError) bool {
	for err != nil {
		if sbe, ok := err.(*searchweb.SearchBackendError); ok {
			*target = sbe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func storeSearchQuery(vec []float32, sourceID string, limit int) store.SearchQuery {
	return store.SearchQuery{QueryVector: vec, SourceID: sourceID, Limit: limit}
}
