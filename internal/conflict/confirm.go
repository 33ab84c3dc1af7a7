package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/todmy/docguard/internal/llm"
	"github.com/todmy/docguard/pkg/models"
)

const confirmSystem = `You judge whether two documentation modules contradict each other.
A contradiction means a reader following one module would act against the other.
Differences in scope or level of detail alone are not contradictions.`

const confirmSchema = `{
  "isConflict": true,
  "conflictType": "content|scope|version|dependency",
  "severity": "critical|high|medium|low",
  "confidence": 0.0,
  "evidence": "quote the contradicting statements",
  "resolutionSuggestions": ["short suggestion"]
}`

type verdict struct {
	IsConflict            bool     `json:"isConflict"`
	ConflictType          string   `json:"conflictType"`
	Severity              string   `json:"severity"`
	Confidence            float64  `json:"confidence"`
	Evidence              string   `json:"evidence"`
	ResolutionSuggestions []string `json:"resolutionSuggestions"`

	conflictType models.ConflictType
	severity     models.Severity
}

func (v *verdict) Validate() error {
	if v.Confidence < 0 || v.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", v.Confidence)
	}
	if !v.IsConflict {
		return nil
	}
	var err error
	if v.conflictType, err = models.ParseConflictType(v.ConflictType); err != nil {
		return fmt.Errorf("conflictType: %w", err)
	}
	if v.severity, err = models.ParseSeverity(v.Severity); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	return nil
}

// confirm asks the oracle to classify one promoted pair
func (d *Detector) confirm(ctx context.Context, source, candidate *models.Module, ec EntityConflict) (*verdict, models.Usage, error) {
	matches, err := json.Marshal(ec.Matches)
	if err != nil {
		return nil, models.Usage{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Module A (%s):\n%s\n\n", source.Title, source.Content)
	fmt.Fprintf(&sb, "Module B (%s):\n%s\n\n", candidate.Title, candidate.Content)
	fmt.Fprintf(&sb, "Embedding similarity: %.3f\nEntity overlap: %.3f\nMatched entities: %s\n",
		ec.Candidate.Similarity, ec.OverlapScore, matches)

	v, usage, err := llm.GenerateJSON[verdict](ctx, d.gen, llm.Request{
		System: confirmSystem,
		Prompt: sb.String(),
		Schema: confirmSchema,
	})
	if err != nil {
		return nil, usage, err
	}
	return &v, usage, nil
}
