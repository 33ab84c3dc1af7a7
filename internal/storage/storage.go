// Package storage defines the persistence contracts of the pipeline and their
// PostgreSQL implementations. Missing rows are reported as models.ErrNotFound.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/docguard/pkg/models"
)

// DocumentRepository defines the interface for document storage operations
type DocumentRepository interface {
	Create(ctx context.Context, document *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetByHash(ctx context.Context, projectID uuid.UUID, hash string) (*models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ModuleFilter scopes module listings
type ModuleFilter struct {
	ProjectID uuid.UUID
	// GroundedOnly keeps modules that are both grounded and active
	GroundedOnly bool
	// Limit caps the number of rows; zero means no cap
	Limit int
}

// ModuleRepository defines the interface for module storage operations
type ModuleRepository interface {
	CreateBatch(ctx context.Context, modules []*models.Module) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Module, error)
	GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*models.Module, error)
	List(ctx context.Context, filter ModuleFilter) ([]*models.Module, error)
	Update(ctx context.Context, module *models.Module) error
	SetGrounded(ctx context.Context, id uuid.UUID, grounded bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error
}

// EmbeddingScope restricts which embedding records a query sees
type EmbeddingScope struct {
	ProjectID uuid.UUID
	// OwnerType filters by owner kind; empty means any
	OwnerType models.OwnerType
	// GroundedOnly keeps module owners that are grounded and active
	GroundedOnly bool
}

// StaleOwner identifies an owner whose newest embedding predates a cutoff
type StaleOwner struct {
	OwnerID   uuid.UUID
	OwnerType models.OwnerType
	ProjectID uuid.UUID
}

// EmbeddingRepository defines the interface for embedding record storage.
// ReplaceForOwner must be atomic: readers see either the old or the new chunk set.
type EmbeddingRepository interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.EmbeddingRecord, error)
	ReplaceForOwner(ctx context.Context, ownerID uuid.UUID, records []*models.EmbeddingRecord) error
	DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error
	ListByScope(ctx context.Context, scope EmbeddingScope) ([]*models.EmbeddingRecord, error)
	ListStaleOwners(ctx context.Context, scope EmbeddingScope, before time.Time) ([]StaleOwner, error)
}

// ConflictFilter scopes conflict listings
type ConflictFilter struct {
	ProjectID uuid.UUID
	// Status filters by lifecycle state; empty means any
	Status models.ConflictStatus
}

// ConflictRepository defines the interface for persisted conflicts.
// Create returns models.ErrAlreadyExists when an open or acknowledged record
// already covers the same canonical pair.
type ConflictRepository interface {
	Create(ctx context.Context, conflict *models.PersistedConflict) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PersistedConflict, error)
	List(ctx context.Context, filter ConflictFilter) ([]*models.PersistedConflict, error)
	Update(ctx context.Context, conflict *models.PersistedConflict) error
}

// ResolutionBatch is every write of one applied resolution. Apply commits it
// as a unit.
type ResolutionBatch struct {
	// Conflict carries the resolved status. It must still be active in the
	// store when the batch is applied.
	Conflict   *models.PersistedConflict
	Updated    []*models.Module
	Deleted    []uuid.UUID
	Ungrounded []uuid.UUID
	Record     *models.ResolutionRecord
}

// ResolutionRepository stores the resolution audit trail
type ResolutionRepository interface {
	// Apply writes the module changes, the conflict status and the audit
	// record together, or none of them. A conflict that is no longer active
	// yields models.ErrInvalidInput.
	Apply(ctx context.Context, batch ResolutionBatch) error
	Append(ctx context.Context, record *models.ResolutionRecord) error
	ListByConflict(ctx context.Context, conflictID uuid.UUID) ([]*models.ResolutionRecord, error)
}
