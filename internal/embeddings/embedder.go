// Package embeddings talks to vector-embedding oracles and maintains the
// embedding index used for similarity screening and semantic search.
package embeddings

import (
	"context"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/pkg/models"
)

// Embedder is a vector-embedding oracle.
// Vectors are returned in input order; every vector of one model has the same length.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) (*Result, error)
	Model() string
	Dimensions() int
	MaxInputTokens() int
}

// Result is the output of one EmbedTexts call
type Result struct {
	Vectors [][]float32
	// Tokens is the number of input tokens billed
	Tokens int
	// Requests is the number of oracle round trips made
	Requests int
}

// Usage converts a result into cost-accounted usage
func (r *Result) Usage(model string) models.Usage {
	if r == nil {
		return models.Usage{}
	}
	return models.Usage{
		Calls:           r.Requests,
		EmbeddingTokens: r.Tokens,
		CostUSD:         llm.PriceFor(model).Cost(r.Tokens, 0),
	}
}
