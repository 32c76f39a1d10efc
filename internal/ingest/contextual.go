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

// Contextualizer generates a short context string for a chunk given the
// full source document it came from — the optional contextual-embeddings
// stage (spec.md §4.5 step 3). A no-op implementation is used when the
// feature flag is off.
type Contextualizer interface {
	Contextualize(ctx context.Context, fullDocument, chunkText string) (string, error)
	Available(ctx context.Context) bool
}

// NoOpContextualizer never enriches; used when contextual embeddings are
// disabled so the pipeline doesn't need a nil check at every call site.
type NoOpContextualizer struct{}

func (NoOpContextualizer) Contextualize(ctx context.Context, fullDocument, chunkText string) (string, error) {
	return "", nil
}
func (NoOpContextualizer) Available(ctx context.Context) bool { return false }

// LLMContextualizer calls an Ollama-compatible /api/generate endpoint to
// summarize a chunk in the context of its source document, grounded on the
// teacher's local-codebase contextual-retrieval LLM client.
type LLMContextualizer struct {
	client  *http.Client
	baseURL string
	model   string
}

func NewLLMContextualizer(baseURL, model string, timeout time.Duration) *LLMContextualizer {
	if model == "" {
		model = "qwen3:0.6b"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LLMContextualizer{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

const contextualPromptTemplate = `You are analyzing a document. Generate a 1-2 sentence context for this chunk that situates it within the whole document.

Document:
%s

Chunk:
%s

Instructions:
- Describe what this chunk covers and how it relates to the document
- Keep it under 100 tokens
- Output ONLY the context, no preamble

Context:`

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (l *LLMContextualizer) Contextualize(ctx context.Context, fullDocument, chunkText string) (string, error) {
	prompt := fmt.Sprintf(contextualPromptTemplate, truncate(fullDocument, 4000), truncate(chunkText, 1500))

	body, err := json.Marshal(generateRequest{Model: l.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal contextual request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build contextual request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("contextual llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("contextual llm status %d: %s", resp.StatusCode, string(respBody))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode contextual response: %w", err)
	}
	return strings.TrimSpace(gr.Response), nil
}

func (l *LLMContextualizer) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... [truncated]"
}
