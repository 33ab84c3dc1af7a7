// Package resolution turns persisted conflicts into remediation strategies,
// previews their effect on modules and applies them.
package resolution

import (
	"github.com/google/uuid"

	"github.com/todmy/docguard/pkg/models"
)

// DefaultResolver is recorded when the caller does not name one
const DefaultResolver = "system"

// Suggestion is one remediation proposed by the oracle
type Suggestion struct {
	Strategy   models.Strategy `json:"strategy"`
	Confidence float64         `json:"confidence"`
	Impact     models.Impact   `json:"impact"`
	Steps      []string        `json:"steps"`
	Preview    string          `json:"preview"`
	Tradeoffs  string          `json:"tradeoffs"`
}

// Suggestions is the result of SuggestResolution
type Suggestions struct {
	ConflictID  uuid.UUID       `json:"conflict_id"`
	Suggestions []Suggestion    `json:"suggestions"`
	Recommended models.Strategy `json:"recommended_strategy"`
	Reasoning   string          `json:"reasoning"`
	Usage       models.Usage    `json:"usage"`
}

// Recommendation is the zero-cost fallback from the decision table
type Recommendation struct {
	Strategy models.Strategy `json:"strategy"`
	Reason   string          `json:"reason"`
}

// AffectedModule is one row of an impact preview
type AffectedModule struct {
	ModuleID uuid.UUID           `json:"module_id"`
	Title    string              `json:"title"`
	Action   models.ImpactAction `json:"action"`
}

// Preview lists what applying a strategy would do
type Preview struct {
	ConflictID uuid.UUID        `json:"conflict_id"`
	Strategy   models.Strategy  `json:"strategy"`
	Affected   []AffectedModule `json:"affected"`
}

// ApplyRequest describes one resolution
type ApplyRequest struct {
	ConflictID uuid.UUID
	Strategy   models.Strategy
	// CustomContent is the replacement body or the note to prepend, by strategy
	CustomContent string
	ResolvedBy    string
	Note          string
}

// Applied is the outcome of Apply
type Applied struct {
	Conflict *models.PersistedConflict `json:"conflict"`
	Record   *models.ResolutionRecord  `json:"record"`
}

// BatchFailure records a conflict that could not be resolved
type BatchFailure struct {
	ConflictID uuid.UUID `json:"conflict_id"`
	Error      string    `json:"error"`
}

// BatchResult is the outcome of BatchResolve
type BatchResult struct {
	Resolved []uuid.UUID    `json:"resolved"`
	Failures []BatchFailure `json:"failures"`
}

// Generated is text produced by a content helper
type Generated struct {
	Content string       `json:"content"`
	Usage   models.Usage `json:"usage"`
}
