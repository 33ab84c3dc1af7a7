package resolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/pkg/models"
)

const suggestSystem = `You propose resolutions for contradicting documentation modules.
Offer between two and four distinct strategies and recommend one of them.
Strategies: merge, replace, deprecate, clarify, split_scope, version_both.`

const suggestSchema = `{
  "suggestions": [
    {
      "strategy": "merge|replace|deprecate|clarify|split_scope|version_both",
      "confidence": 0.0,
      "impact": "low|medium|high",
      "steps": ["step"],
      "preview": "what the documentation reads like afterwards",
      "tradeoffs": "what is lost"
    }
  ],
  "recommendedStrategy": "merge|replace|deprecate|clarify|split_scope|version_both",
  "reasoning": "why"
}`

type suggestResponse struct {
	Suggestions []struct {
		Strategy   string   `json:"strategy"`
		Confidence float64  `json:"confidence"`
		Impact     string   `json:"impact"`
		Steps      []string `json:"steps"`
		Preview    string   `json:"preview"`
		Tradeoffs  string   `json:"tradeoffs"`
	} `json:"suggestions"`
	RecommendedStrategy string `json:"recommendedStrategy"`
	Reasoning           string `json:"reasoning"`

	parsed      []Suggestion
	recommended models.Strategy
}

func (r *suggestResponse) Validate() error {
	if n := len(r.Suggestions); n < 2 || n > 4 {
		return fmt.Errorf("want 2 to 4 suggestions, got %d", n)
	}
	r.parsed = make([]Suggestion, len(r.Suggestions))
	for i, s := range r.Suggestions {
		strategy, err := models.ParseStrategy(s.Strategy)
		if err != nil {
			return fmt.Errorf("suggestion %d: %w", i, err)
		}
		impact, err := models.ParseImpact(s.Impact)
		if err != nil {
			return fmt.Errorf("suggestion %d: %w", i, err)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			return fmt.Errorf("suggestion %d: confidence %v outside [0,1]", i, s.Confidence)
		}
		r.parsed[i] = Suggestion{
			Strategy:   strategy,
			Confidence: s.Confidence,
			Impact:     impact,
			Steps:      append([]string{}, s.Steps...),
			Preview:    s.Preview,
			Tradeoffs:  s.Tradeoffs,
		}
	}
	var err error
	if r.recommended, err = models.ParseStrategy(r.RecommendedStrategy); err != nil {
		return fmt.Errorf("recommendedStrategy: %w", err)
	}
	return nil
}

// SuggestResolution asks the oracle for ranked strategies. An unparseable
// answer is an error; use Recommend for a fallback.
func (e *Engine) SuggestResolution(ctx context.Context, conflictID uuid.UUID) (*Suggestions, error) {
	p, err := e.load(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if e.gen == nil {
		return nil, fmt.Errorf("%w: no generation oracle configured", models.ErrOracleUnavailable)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Conflict type: %s\nSeverity: %s\nEvidence: %s\n\n", p.conflict.ConflictType, p.conflict.Severity, p.conflict.Evidence)
	fmt.Fprintf(&sb, "Source module %q (grounded: %t, updated %s):\n%s\n\n",
		p.source.Title, p.source.IsGrounded, p.source.UpdatedAt.Format("2006-01-02"), p.source.Content)
	fmt.Fprintf(&sb, "Conflicting module %q (grounded: %t, updated %s):\n%s\n",
		p.conflicting.Title, p.conflicting.IsGrounded, p.conflicting.UpdatedAt.Format("2006-01-02"), p.conflicting.Content)

	resp, usage, err := llm.GenerateJSON[suggestResponse](ctx, e.gen, llm.Request{
		System: suggestSystem,
		Prompt: sb.String(),
		Schema: suggestSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest resolution for %s: %w", conflictID, err)
	}

	return &Suggestions{
		ConflictID:  conflictID,
		Suggestions: resp.parsed,
		Recommended: resp.recommended,
		Reasoning:   resp.Reasoning,
		Usage:       usage,
	}, nil
}

const mergeSystem = `You merge two documentation modules that contradict each other into one
coherent module body in markdown. Keep every fact that is not contradicted and state
the resolved value once.`

const clarifySystem = `You write a short note that tells the reader when each of two
contradicting documentation modules applies. Two sentences at most, markdown.`

const contentSchema = `{"content": "markdown text"}`

type contentResponse struct {
	Content string `json:"content"`
}

func (r *contentResponse) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return fmt.Errorf("empty content")
	}
	return nil
}

// GenerateMergedContent returns one module body combining both texts
func GenerateMergedContent(ctx context.Context, gen llm.Generator, sourceContent, conflictingContent, evidence string) (*Generated, error) {
	return generateContent(ctx, gen, mergeSystem, sourceContent, conflictingContent, evidence)
}

// GenerateClarifyingContext returns a disambiguating note to prepend to both modules
func GenerateClarifyingContext(ctx context.Context, gen llm.Generator, sourceContent, conflictingContent, evidence string) (*Generated, error) {
	return generateContent(ctx, gen, clarifySystem, sourceContent, conflictingContent, evidence)
}

func generateContent(ctx context.Context, gen llm.Generator, system, a, b, evidence string) (*Generated, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: no generation oracle configured", models.ErrOracleUnavailable)
	}
	prompt := fmt.Sprintf("Module A:\n%s\n\nModule B:\n%s\n\nContradiction: %s\n", a, b, evidence)
	resp, usage, err := llm.GenerateJSON[contentResponse](ctx, gen, llm.Request{
		System: system,
		Prompt: prompt,
		Schema: contentSchema,
	})
	if err != nil {
		return nil, err
	}
	return &Generated{Content: resp.Content, Usage: usage}, nil
}

// MergedContent generates merged text for a persisted conflict
func (e *Engine) MergedContent(ctx context.Context, conflictID uuid.UUID) (*Generated, error) {
	p, err := e.load(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	return GenerateMergedContent(ctx, e.gen, p.source.Content, p.conflicting.Content, p.conflict.Evidence)
}

// ClarifyingContext generates a clarifying note for a persisted conflict
func (e *Engine) ClarifyingContext(ctx context.Context, conflictID uuid.UUID) (*Generated, error) {
	p, err := e.load(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	return GenerateClarifyingContext(ctx, e.gen, p.source.Content, p.conflicting.Content, p.conflict.Evidence)
}
