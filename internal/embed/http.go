package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aman-CERP/ragcrawl/internal/errs"
)

// HTTPClient talks to an OpenAI-compatible embeddings endpoint:
// POST {BaseURL}/embeddings with {"model": ..., "input": [...]}.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	timeout    time.Duration
	retry      RetryConfig

	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPClientOption configures an HTTPClient at construction time.
type HTTPClientOption func(*HTTPClient)

func WithBatchSize(n int) HTTPClientOption {
	return func(c *HTTPClient) {
		if n >= MinBatchSize && n <= MaxBatchSize {
			c.batchSize = n
		}
	}
}

func WithTimeout(d time.Duration) HTTPClientOption {
	return func(c *HTTPClient) { c.timeout = d }
}

func WithRetryConfig(cfg RetryConfig) HTTPClientOption {
	return func(c *HTTPClient) { c.retry = cfg }
}

func WithLogger(logger *slog.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewHTTPClient builds an embedding client against baseURL/model.
func NewHTTPClient(baseURL, apiKey, model string, dimensions int, opts ...HTTPClientOption) *HTTPClient {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	c := &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		batchSize:  DefaultBatchSize,
		timeout:    DefaultTimeout,
		retry:      DefaultRetryConfig(),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Timeout = c.timeout
	return c
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed embeds a single text.
func (c *HTTPClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in chunks of c.batchSize, retrying each chunk with
// exponential backoff. A chunk that still fails after all retries falls back
// to zero vectors for its texts rather than failing the whole call, so one
// bad batch doesn't sink an otherwise-successful ingest.
func (c *HTTPClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := c.embedOne(ctx, batch)
		if err != nil {
			c.logger.WarnContext(ctx, "embedding batch failed after retries, using zero vectors",
				slog.Int("batch_start", start), slog.Int("batch_size", len(batch)), slog.Any("error", err))
			vecs = make([][]float32, len(batch))
			for i := range vecs {
				vecs[i] = make([]float32, c.dimensions)
			}
		}
		copy(results[start:end], vecs)
	}

	return results, nil
}

func (c *HTTPClient) embedOne(ctx context.Context, batch []string) ([][]float32, error) {
	var result [][]float32

	err := DownloadWithRetry(ctx, c.retry, func() error {
		vecs, callErr := c.call(ctx, batch)
		if callErr != nil {
			return callErr
		}
		result = vecs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *HTTPClient) call(ctx context.Context, batch []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Model: c.model, Input: batch})
	if err != nil {
		return nil, errs.New(errs.Internal, "marshal embedding request", err)
	}

	url := c.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errs.New(errs.Internal, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.BackendUnavailable, "embedding request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.BackendUnavailable, "read embedding response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, errs.New(errs.BackendUnavailable, fmt.Sprintf("embedding backend returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.BackendRejected, fmt.Sprintf("embedding backend returned %d: %s", resp.StatusCode, body), nil)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errs.New(errs.Internal, "parse embedding response", err)
	}
	if len(parsed.Data) != len(batch) {
		return nil, errs.New(errs.BackendRejected, fmt.Sprintf("embedding backend returned %d vectors for %d inputs", len(parsed.Data), len(batch)), nil)
	}

	vecs := make([][]float32, len(batch))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			continue
		}
		vecs[d.Index] = normalizeVector(d.Embedding)
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (c *HTTPClient) Dimensions() int { return c.dimensions }

// ModelName returns the configured model identifier.
func (c *HTTPClient) ModelName() string { return c.model }

// Available does a lightweight reachability probe by embedding the single
// text "ping", without retries.
func (c *HTTPClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.call(ctx, []string{"ping"})
	return err == nil
}

// Close is a no-op; HTTPClient holds no resources beyond the shared http.Client.
func (c *HTTPClient) Close() error { return nil }
