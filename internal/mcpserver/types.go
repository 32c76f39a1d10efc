package mcpserver

import (
	"encoding/json"
	"fmt"
)

// Status is embedded in every tool output. On success only Success is true
// and the rest are zero; on failure it carries the structured error object
// spec.md §6/§7 require — success:false, a human message, an error_kind,
// and (for Internal-kind failures) a correlation id for log lookup. Tool
// handlers return a nil Go error and fill this in instead, so a business
// failure still reaches the client as an ordinary 200-OK JSON-RPC result.
type Status struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// urlArg accepts either a single URL string or an array of URL strings in
// the same JSON field, per spec.md §4.9's argument-coercion rule. It
// unmarshals permissively and normalizes to a []string via Strings().
type urlArg struct {
	values []string
}

func (u *urlArg) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		u.values = []string{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		u.values = many
		return nil
	}

	return fmt.Errorf("url must be a string or an array of strings")
}

func (u *urlArg) MarshalJSON() ([]byte, error) {
	if len(u.values) == 1 {
		return json.Marshal(u.values[0])
	}
	return json.Marshal(u.values)
}

func (u urlArg) Strings() []string { return u.values }

// ScrapeURLsInput is scrape_urls' argument set.
type ScrapeURLsInput struct {
	URL               urlArg `json:"url" jsonschema:"a single URL or an array of URLs to fetch and ingest"`
	ReturnRawMarkdown bool   `json:"return_raw_markdown,omitempty" jsonschema:"also return each page's fetched markdown; pages are still ingested"`
	MaxConcurrent     int    `json:"max_concurrent,omitempty" jsonschema:"accepted but not applied; the crawler's configured concurrency is used"`
	BatchSize         int    `json:"batch_size,omitempty" jsonschema:"accepted but not applied; the configured embedding/upsert batch sizes are used"`
}

// URLOutcome is one URL's per-URL ingestion status, shared by several tool
// outputs.
type URLOutcome struct {
	URL                 string `json:"url"`
	Success             bool   `json:"success"`
	Error               string `json:"error,omitempty"`
	ChunksWritten       int    `json:"chunks_written"`
	CodeExamplesWritten int    `json:"code_examples_written,omitempty"`
	Markdown            string `json:"markdown,omitempty"`
}

type ScrapeURLsOutput struct {
	Status
	Results []URLOutcome `json:"results,omitempty"`
}

// SmartCrawlURLInput is smart_crawl_url's argument set.
type SmartCrawlURLInput struct {
	URL           string `json:"url" jsonschema:"the seed URL to crawl from"`
	MaxDepth      int    `json:"max_depth,omitempty" jsonschema:"accepted but not applied; the crawler's configured depth (default 3) is used"`
	MaxConcurrent int    `json:"max_concurrent,omitempty" jsonschema:"accepted but not applied; the crawler's configured concurrency (default 10) is used"`
	ChunkSize     int    `json:"chunk_size,omitempty" jsonschema:"accepted but not applied; the configured chunk size is used"`
}

type SmartCrawlURLOutput struct {
	Status
	PagesCrawled        int `json:"pages_crawled"`
	PagesFailed         int `json:"pages_failed"`
	ChunksWritten       int `json:"chunks_written"`
	CodeExamplesWritten int `json:"code_examples_written"`
}

type GetAvailableSourcesInput struct{}

type SourceOutput struct {
	SourceID   string `json:"source_id"`
	Summary    string `json:"summary"`
	TotalWords int    `json:"total_words"`
	ChunkCount int    `json:"chunk_count"`
}

type GetAvailableSourcesOutput struct {
	Status
	Sources []SourceOutput `json:"sources,omitempty"`
}

// PerformRAGQueryInput is perform_rag_query's and search_code_examples'
// shared argument set.
type PerformRAGQueryInput struct {
	Query      string `json:"query" jsonschema:"the natural-language query"`
	Source     string `json:"source,omitempty" jsonschema:"restrict to one source id"`
	MatchCount int    `json:"match_count,omitempty" jsonschema:"number of results to return, default 5"`
}

type RankedChunk struct {
	URL         string            `json:"url"`
	ChunkIndex  int               `json:"chunk_index"`
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Score       float64           `json:"score"`
	RerankScore *float64          `json:"rerank_score,omitempty"`
}

type PerformRAGQueryOutput struct {
	Status
	Results []RankedChunk `json:"results,omitempty"`
}

// SearchInput is search's argument set.
type SearchInput struct {
	Query             string `json:"query" jsonschema:"the web search query"`
	ReturnRawMarkdown bool   `json:"return_raw_markdown,omitempty"`
	NumResults        int    `json:"num_results,omitempty" jsonschema:"number of search results to ingest, default 6"`
	BatchSize         int    `json:"batch_size,omitempty"`
	MaxConcurrent     int    `json:"max_concurrent,omitempty"`
}

type SearchURLGroup struct {
	URL     string        `json:"url"`
	Results []RankedChunk `json:"results,omitempty"`
}

type SearchOutput struct {
	Status
	Markdown map[string]string `json:"markdown,omitempty"`
	Groups   []SearchURLGroup  `json:"groups,omitempty"`
}

// ParseGithubRepositoryInput is parse_github_repository's argument set.
type ParseGithubRepositoryInput struct {
	RepoURL string `json:"repo_url" jsonschema:"the repository's clone URL"`
}

type ParseGithubRepositoryOutput struct {
	Status
	RepositoryName string `json:"repository_name,omitempty"`
	FilesProcessed int    `json:"files_processed"`
}

// CheckHallucinationsInput is check_ai_script_hallucinations' argument set.
type CheckHallucinationsInput struct {
	ScriptPath string `json:"script_path" jsonschema:"path to the script to validate"`
	Mode       string `json:"mode,omitempty" jsonschema:"fast, balanced, or thorough; default balanced"`
}

type FindingOutput struct {
	Line            int      `json:"line"`
	Kind            string   `json:"kind"`
	Name            string   `json:"name"`
	Confidence      float64  `json:"confidence"`
	Category        string   `json:"category"`
	ActualSignature string   `json:"actual_signature,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
}

type CheckHallucinationsOutput struct {
	Status
	Findings    []FindingOutput `json:"findings,omitempty"`
	OverallRisk float64         `json:"overall_risk"`
	Counts      map[string]int  `json:"counts,omitempty"`
}

// QueryKnowledgeGraphInput is query_knowledge_graph's argument set.
type QueryKnowledgeGraphInput struct {
	Command string `json:"command" jsonschema:"e.g. 'repos', 'classes <repo>'"`
}

type QueryKnowledgeGraphOutput struct {
	Status
	Command string   `json:"command"`
	Items   []string `json:"items,omitempty"`
}
