package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Summarizer generates natural-language summaries for code examples
// (spec.md §4.5 step 7) and for a source's aggregate registry entry (step
// 8). Both calls share the same Ollama-compatible backend as Contextualizer
// but use distinct prompts, so it's a separate small interface rather than
// overloading Contextualizer.
type Summarizer interface {
	SummarizeCode(ctx context.Context, code, surroundingContext string) (string, error)
	SummarizeSource(ctx context.Context, aggregatedContent string) (string, error)
}

// NoOpSummarizer returns empty summaries; used when no LLM backend is
// configured so source registry updates still succeed, just without prose.
type NoOpSummarizer struct{}

func (NoOpSummarizer) SummarizeCode(ctx context.Context, code, surroundingContext string) (string, error) {
	return "", nil
}
func (NoOpSummarizer) SummarizeSource(ctx context.Context, aggregatedContent string) (string, error) {
	return "", nil
}

// LLMSummarizer is the Ollama-backed Summarizer implementation.
type LLMSummarizer struct {
	client  *http.Client
	baseURL string
	model   string
}

func NewLLMSummarizer(baseURL, model string, timeout time.Duration) *LLMSummarizer {
	if model == "" {
		model = "qwen3:0.6b"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LLMSummarizer{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

const codeSummaryPrompt = `Summarize what this code example demonstrates in one sentence.

Surrounding context:
%s

Code:
%s

Summary:`

const sourceSummaryPrompt = `Summarize what this source covers in 2-3 sentences, for use as a catalog description.

Content:
%s

Summary:`

func (l *LLMSummarizer) SummarizeCode(ctx context.Context, code, surroundingContext string) (string, error) {
	return l.generate(ctx, fmt.Sprintf(codeSummaryPrompt, truncate(surroundingContext, 1000), truncate(code, 2000)))
}

func (l *LLMSummarizer) SummarizeSource(ctx context.Context, aggregatedContent string) (string, error) {
	return l.generate(ctx, fmt.Sprintf(sourceSummaryPrompt, truncate(aggregatedContent, 6000)))
}

func (l *LLMSummarizer) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: l.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarize llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("summarize llm status %d: %s", resp.StatusCode, string(respBody))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode summarize response: %w", err)
	}
	return strings.TrimSpace(gr.Response), nil
}
