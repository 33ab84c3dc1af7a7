package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/todmy/docguard/pkg/models"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1"
	defaultBatchSize = 100
	defaultTimeout   = 30 * time.Second
)

// Client handles embedding generation via OpenRouter API
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	batchSize  int
	limiter    *rate.Limiter
}

var _ Embedder = (*Client)(nil)

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithModel sets the embedding model
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithBatchSize sets the batch size for API requests
func WithBatchSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.batchSize = size
		}
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLimiter makes every batch request wait on a shared limiter
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient creates a new embedding client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:   defaultBaseURL,
		apiKey:    apiKey,
		model:     DefaultModel,
		batchSize: defaultBatchSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// EmbedTexts generates embeddings for a list of texts.
// Batches are sent one after another; the first failure aborts the call.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) (*Result, error) {
	res := &Result{}
	if len(texts) == 0 {
		return res, nil
	}

	res.Vectors = make([][]float32, 0, len(texts))
	for batchIdx, batch := range splitIntoBatches(texts, c.batchSize) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %v", models.ErrOracleUnavailable, err)
			}
		}

		vectors, tokens, err := c.embedBatch(ctx, batch)
		res.Requests++
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", batchIdx, err)
		}
		res.Vectors = append(res.Vectors, vectors...)
		res.Tokens += tokens
	}

	return res, nil
}

// Model returns the configured model name
func (c *Client) Model() string { return c.model }

// Dimensions returns the embedding dimension for the configured model
func (c *Client) Dimensions() int {
	return DimensionsOf(c.model)
}

// MaxInputTokens returns the per-input token ceiling of the configured model
func (c *Client) MaxInputTokens() int {
	return MaxInputTokensOf(c.model)
}

func splitIntoBatches(texts []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	reqBody := embeddingRequest{
		Model: c.model,
		Input: texts,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: do request: %v", models.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", models.ErrOracleUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: API error (status %d): %s", models.ErrOracleUnavailable, resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, 0, fmt.Errorf("%w: unmarshal response: %v", models.ErrOracleUnavailable, err)
	}

	// Sort by index to ensure order matches input
	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, emb := range embeddings {
		if len(emb) == 0 {
			return nil, 0, fmt.Errorf("%w: missing embedding for input %d", models.ErrOracleUnavailable, i)
		}
	}

	tokens := embResp.Usage.PromptTokens
	if tokens == 0 {
		for _, t := range texts {
			tokens += models.EstimateTokens(t)
		}
	}

	return embeddings, tokens, nil
}
