// Package llm wraps text-generation oracles behind a single interface and
// provides the shared schema-checked JSON extraction used by every caller.
package llm

import (
	"context"

	"github.com/todmy/docguard/pkg/models"
)

// Request is one generation call
type Request struct {
	// System is the fixed instruction for the call site
	System string
	// Prompt carries the per-call input
	Prompt string
	// Schema documents the JSON shape expected back; it is appended to the system instruction
	Schema string
	// MaxTokens caps the response length; zero uses the client default
	MaxTokens int
}

// Completion is the raw oracle answer plus token accounting
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator is a text-generation oracle.
// Implementations wrap non-success responses in models.ErrOracleUnavailable.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
}

// Usage converts a completion into cost-accounted usage
func (c *Completion) Usage() models.Usage {
	if c == nil {
		return models.Usage{}
	}
	return models.Usage{
		Calls:        1,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		CostUSD:      PriceFor(c.Model).Cost(c.InputTokens, c.OutputTokens),
	}
}

// Price is USD per million tokens
type Price struct {
	Input  float64
	Output float64
}

// Cost returns the USD cost of a call
func (p Price) Cost(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*p.Input + float64(outputTokens)*p.Output) / 1_000_000
}

var prices = map[string]Price{
	"claude-3-haiku-20240307":       {Input: 0.25, Output: 1.25},
	"claude-3-5-haiku-20241022":     {Input: 0.80, Output: 4.00},
	"claude-sonnet-4-20250514":      {Input: 3.00, Output: 15.00},
	"gemini-2.5-flash":              {Input: 0.30, Output: 2.50},
	"gemini-2.5-pro":                {Input: 1.25, Output: 10.00},
	"openai/text-embedding-3-small": {Input: 0.02},
	"openai/text-embedding-3-large": {Input: 0.13},
	"gemini-embedding-001":          {Input: 0.15},
}

// PriceFor returns the known price of a model, zero when unknown
func PriceFor(model string) Price {
	return prices[model]
}
