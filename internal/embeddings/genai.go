package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/todmy/docguard/pkg/models"
)

// genaiBatchSize is the per-request input cap of the Gemini embedding endpoint
const genaiBatchSize = 100

// GenAIEmbedder generates embeddings with Google's Gemini API
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	limiter    *rate.Limiter
}

var _ Embedder = (*GenAIEmbedder)(nil)

// NewGenAIEmbedder creates a Gemini embedder. limiter may be nil.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string, limiter *rate.Limiter) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = ModelGeminiEmbedding001
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: DimensionsOf(model),
		limiter:    limiter,
	}, nil
}

// EmbedTexts embeds texts in sequential batches
func (e *GenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) (*Result, error) {
	res := &Result{}
	if len(texts) == 0 {
		return res, nil
	}

	dims := int32(e.dimensions)
	config := &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dims,
	}

	for _, batch := range splitIntoBatches(texts, genaiBatchSize) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %v", models.ErrOracleUnavailable, err)
			}
		}

		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = genai.NewContentFromText(text, genai.RoleUser)
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, config)
		res.Requests++
		if err != nil {
			return nil, fmt.Errorf("%w: GenAI embed failed: %v", models.ErrOracleUnavailable, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: GenAI returned %d embeddings for %d inputs",
				models.ErrOracleUnavailable, len(resp.Embeddings), len(batch))
		}

		for i, emb := range resp.Embeddings {
			res.Vectors = append(res.Vectors, emb.Values)
			res.Tokens += models.EstimateTokens(batch[i])
		}
	}

	return res, nil
}

// Model returns the model name
func (e *GenAIEmbedder) Model() string { return e.model }

// Dimensions returns the requested output dimensionality
func (e *GenAIEmbedder) Dimensions() int { return e.dimensions }

// MaxInputTokens returns the per-input token ceiling
func (e *GenAIEmbedder) MaxInputTokens() int { return MaxInputTokensOf(e.model) }
