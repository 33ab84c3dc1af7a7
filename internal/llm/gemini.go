package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/todmy/docguard/pkg/models"
)

// GeminiClient is a thin wrapper around the official genai client
type GeminiClient struct {
	client *genai.Client
	model  string
}

var _ Generator = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini generator
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Generate runs one GenerateContent call
func (g *GeminiClient) Generate(ctx context.Context, r Request) (*Completion, error) {
	config := &genai.GenerateContentConfig{}
	if r.System != "" {
		config.SystemInstruction = genai.NewContentFromText(r.System, genai.RoleUser)
	}
	if r.MaxTokens > 0 {
		config.MaxOutputTokens = int32(r.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(r.Prompt, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %v", models.ErrOracleUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: gemini returned no candidates", models.ErrOracleUnavailable)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}

	completion := &Completion{Text: text.String(), Model: g.model}
	if resp.UsageMetadata != nil {
		completion.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}
