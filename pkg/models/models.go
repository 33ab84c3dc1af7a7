package models

import (
	"time"

	"github.com/google/uuid"
)

// Document represents a source markdown document inside a project
type Document struct {
	ID          uuid.UUID `json:"id"`
	ProjectID   uuid.UUID `json:"project_id"`
	Path        string    `json:"path"`
	Content     string    `json:"-"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SectionType classifies a RawSection
type SectionType string

const (
	SectionHeading   SectionType = "heading"
	SectionCode      SectionType = "code"
	SectionList      SectionType = "list"
	SectionTable     SectionType = "table"
	SectionParagraph SectionType = "paragraph"
)

// RawSection is one structural block produced by the markdown parser.
// Line numbers are 1-based and inclusive.
type RawSection struct {
	Content      string      `json:"content"`
	StartLine    int         `json:"start_line"`
	EndLine      int         `json:"end_line"`
	HeadingLevel int         `json:"heading_level,omitempty"`
	HeadingText  string      `json:"heading_text,omitempty"`
	Type         SectionType `json:"type"`
}

// Module is a semantically coherent, independently addressable slice of a document
type Module struct {
	ID              uuid.UUID  `json:"id"`
	DocumentID      uuid.UUID  `json:"document_id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	ModuleKey       string     `json:"module_key"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Content         string     `json:"content"`
	ContentHash     string     `json:"content_hash"`
	StartLine       int        `json:"start_line"`
	EndLine         int        `json:"end_line"`
	HeadingLevel    int        `json:"heading_level,omitempty"`
	ModuleType      ModuleType `json:"module_type"`
	Order           int        `json:"order"`
	EstimatedTokens int        `json:"estimated_tokens"`
	DependsOn       []string   `json:"depends_on"`
	Tags            []string   `json:"tags"`
	IsGrounded      bool       `json:"is_grounded"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SetContent replaces the module body and recomputes the derived fields
func (m *Module) SetContent(content string) {
	m.Content = content
	m.ContentHash = HashContent(content)
	m.EstimatedTokens = EstimateTokens(content)
}

// OwnerType identifies what an embedding record belongs to
type OwnerType string

const (
	OwnerDocument OwnerType = "document"
	OwnerModule   OwnerType = "module"
)

// EmbeddingRecord is one embedded chunk of an owner's text
type EmbeddingRecord struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	OwnerType  OwnerType `json:"owner_type"`
	ProjectID  uuid.UUID `json:"project_id"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkText  string    `json:"chunk_text"`
	Vector     []float32 `json:"-"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	CreatedAt  time.Time `json:"created_at"`
}

// PersistedConflict is the durable record of a confirmed conflict
type PersistedConflict struct {
	ID                    uuid.UUID      `json:"id"`
	ProjectID             uuid.UUID      `json:"project_id"`
	ModuleID              uuid.UUID      `json:"module_id"`
	ConflictingModuleID   uuid.UUID      `json:"conflicting_module_id"`
	ConflictingDocumentID uuid.UUID      `json:"conflicting_document_id"`
	PairKey               string         `json:"pair_key"`
	ConflictType          ConflictType   `json:"conflict_type"`
	Severity              Severity       `json:"severity"`
	Confidence            float64        `json:"confidence"`
	Evidence              string         `json:"evidence"`
	Suggestions           []string       `json:"resolution_suggestions"`
	Status                ConflictStatus `json:"status"`
	DetectedAt            time.Time      `json:"detected_at"`
	ResolvedAt            *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy            string         `json:"resolved_by,omitempty"`
	ResolutionStrategy    Strategy       `json:"resolution_strategy,omitempty"`
	ResolutionNote        string         `json:"resolution_note,omitempty"`
}

// Active reports whether the conflict still blocks a new record for its pair
func (c *PersistedConflict) Active() bool {
	return c.Status == StatusOpen || c.Status == StatusAcknowledged
}

// ResolutionRecord is the audit entry appended for every applied resolution
type ResolutionRecord struct {
	ID         uuid.UUID      `json:"id"`
	ConflictID uuid.UUID      `json:"conflict_id"`
	Strategy   Strategy       `json:"strategy"`
	ResolvedBy string         `json:"resolved_by"`
	Changes    []ModuleChange `json:"changes"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ModuleChange captures what a resolution did to one module
type ModuleChange struct {
	ModuleID   uuid.UUID    `json:"module_id"`
	Action     ImpactAction `json:"action"`
	NewContent string       `json:"new_content,omitempty"`
}
