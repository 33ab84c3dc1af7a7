package conflict

import (
	"time"

	"github.com/google/uuid"

	"github.com/todmy/docguard/pkg/models"
)

// Config holds funnel thresholds and throttling
type Config struct {
	// SimilarityThreshold is the stage 1 cosine cutoff
	SimilarityThreshold float64
	// OverlapThreshold is the stage 2 entity overlap cutoff
	OverlapThreshold float64
	// ConfidenceThreshold is the stage 3 confirmation cutoff
	ConfidenceThreshold float64
	// MaxCandidates caps how many stage 1 hits reach stage 2, best first
	MaxCandidates int
	// EntityBatchSize and EntityBatchDelay throttle entity extraction
	EntityBatchSize  int
	EntityBatchDelay time.Duration
	// Workers bounds concurrent per-module funnel runs in a project scan
	Workers int
}

// DefaultConfig returns default funnel configuration
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.90,
		OverlapThreshold:    0.70,
		ConfidenceThreshold: 0.75,
		MaxCandidates:       10,
		EntityBatchSize:     5,
		EntityBatchDelay:    200 * time.Millisecond,
		Workers:             4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.OverlapThreshold <= 0 {
		c.OverlapThreshold = d.OverlapThreshold
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.EntityBatchSize <= 0 {
		c.EntityBatchSize = d.EntityBatchSize
	}
	if c.EntityBatchDelay < 0 {
		c.EntityBatchDelay = 0
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Entity is a typed fact extracted from a module
type Entity struct {
	Type    models.EntityType `json:"type"`
	Value   string            `json:"value"`
	Context string            `json:"context,omitempty"`
}

// Candidate is a stage 1 hit
type Candidate struct {
	ModuleID   uuid.UUID `json:"module_id"`
	DocumentID uuid.UUID `json:"document_id"`
	Title      string    `json:"title"`
	Similarity float64   `json:"similarity"`
}

// EntityMatch pairs a source entity with the candidate entity it overlaps
type EntityMatch struct {
	Source    Entity `json:"source"`
	Candidate Entity `json:"candidate"`
}

// EntityConflict is a stage 2 promotion
type EntityConflict struct {
	Candidate    Candidate     `json:"candidate"`
	Matches      []EntityMatch `json:"matches"`
	OverlapScore float64       `json:"overlap_score"`
}

// DetectedConflict is a stage 3 confirmation
type DetectedConflict struct {
	ProjectID             uuid.UUID           `json:"project_id"`
	SourceModuleID        uuid.UUID           `json:"source_module_id"`
	ConflictingModuleID   uuid.UUID           `json:"conflicting_module_id"`
	ConflictingDocumentID uuid.UUID           `json:"conflicting_document_id"`
	ConflictType          models.ConflictType `json:"conflict_type"`
	Severity              models.Severity     `json:"severity"`
	Confidence            float64             `json:"confidence"`
	Evidence              string              `json:"evidence"`
	ResolutionSuggestions []string            `json:"resolution_suggestions"`
	Similarity            float64             `json:"similarity"`
	OverlapScore          float64             `json:"overlap_score"`
}

// PairKey returns the canonical key of the module pair
func (c DetectedConflict) PairKey() string {
	_, _, key := models.CanonicalPair(c.SourceModuleID, c.ConflictingModuleID)
	return key
}

// StageUsage splits oracle consumption by funnel stage
type StageUsage struct {
	Similarity   models.Usage `json:"similarity"`
	Entities     models.Usage `json:"entities"`
	Confirmation models.Usage `json:"confirmation"`
}

// Add accumulates other into u
func (u *StageUsage) Add(other StageUsage) {
	u.Similarity.Add(other.Similarity)
	u.Entities.Add(other.Entities)
	u.Confirmation.Add(other.Confirmation)
}

// Total returns the sum over all stages
func (u StageUsage) Total() models.Usage {
	total := u.Similarity
	total.Add(u.Entities)
	total.Add(u.Confirmation)
	return total
}

// ModuleReport is the funnel output for one source module
type ModuleReport struct {
	ModuleID        uuid.UUID          `json:"module_id"`
	Candidates      []Candidate        `json:"candidates"`
	EntityConflicts []EntityConflict   `json:"entity_conflicts"`
	Conflicts       []DetectedConflict `json:"conflicts"`
	// Dropped counts items lost to per-item failures
	Dropped int        `json:"dropped"`
	Usage   StageUsage `json:"usage"`
}

// ProjectOptions scopes a project scan
type ProjectOptions struct {
	GroundedOnly bool
	// MaxModules caps how many modules are scanned; zero means all
	MaxModules int
}

// ModuleFailure records a module whose funnel run failed
type ModuleFailure struct {
	ModuleID uuid.UUID `json:"module_id"`
	Error    string    `json:"error"`
}

// ProjectSummary counts a project scan
type ProjectSummary struct {
	ModulesScanned  int                     `json:"modules_scanned"`
	ModulesFailed   int                     `json:"modules_failed"`
	Candidates      int                     `json:"candidates"`
	EntityConflicts int                     `json:"entity_conflicts"`
	Conflicts       int                     `json:"conflicts"`
	BySeverity      map[models.Severity]int `json:"by_severity"`
}

// ProjectReport is the deduplicated result of a project scan
type ProjectReport struct {
	Conflicts []DetectedConflict `json:"conflicts"`
	Summary   ProjectSummary     `json:"summary"`
	Failures  []ModuleFailure    `json:"failures,omitempty"`
	Usage     StageUsage         `json:"usage"`
	Total     models.Usage       `json:"total_usage"`
}

// StoreResult counts a Store call
type StoreResult struct {
	Created int         `json:"created"`
	Skipped int         `json:"skipped"`
	IDs     []uuid.UUID `json:"ids"`
}

// GroupBySeverity groups conflicts by severity level
func GroupBySeverity(conflicts []DetectedConflict) map[models.Severity][]DetectedConflict {
	grouped := make(map[models.Severity][]DetectedConflict)

	for _, c := range conflicts {
		grouped[c.Severity] = append(grouped[c.Severity], c)
	}

	return grouped
}
