package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/todmy/docguard/pkg/models"
)

// AnthropicConfig holds Anthropic client configuration
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// DefaultAnthropicConfig returns default configuration
func DefaultAnthropicConfig() AnthropicConfig {
	return AnthropicConfig{
		BaseURL:   "https://api.anthropic.com/v1",
		Model:     "claude-3-5-haiku-20241022",
		MaxTokens: 4096,
		Timeout:   60 * time.Second,
	}
}

// AnthropicClient calls the Anthropic messages API
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

var _ Generator = (*AnthropicClient)(nil)

// NewAnthropicClient creates a new Anthropic generator
func NewAnthropicClient(config AnthropicConfig) *AnthropicClient {
	defaults := DefaultAnthropicConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaults.MaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}

	return &AnthropicClient{
		apiKey:    config.APIKey,
		baseURL:   config.BaseURL,
		model:     config.Model,
		maxTokens: config.MaxTokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate sends one message and returns the concatenated text blocks
func (c *AnthropicClient) Generate(ctx context.Context, r Request) (*Completion, error) {
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    r.System,
		Messages: []message{
			{Role: "user", Content: r.Prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", models.ErrOracleUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: anthropic status %d: %s", models.ErrOracleUnavailable, resp.StatusCode, string(body))
	}

	var ar anthropicResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", models.ErrOracleUnavailable, err)
	}

	var text bytes.Buffer
	for _, block := range ar.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: empty response", models.ErrOracleUnavailable)
	}

	model := ar.Model
	if model == "" {
		model = c.model
	}

	return &Completion{
		Text:         text.String(),
		Model:        model,
		InputTokens:  ar.Usage.InputTokens,
		OutputTokens: ar.Usage.OutputTokens,
	}, nil
}
