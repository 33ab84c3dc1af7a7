package conflict

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// Store persists detected conflicts as open records. A pair that already has
// an open or acknowledged record is skipped.
func (d *Detector) Store(ctx context.Context, conflicts []DetectedConflict) (*StoreResult, error) {
	result := &StoreResult{IDs: []uuid.UUID{}}

	for _, c := range conflicts {
		record := &models.PersistedConflict{
			ProjectID:             c.ProjectID,
			ModuleID:              c.SourceModuleID,
			ConflictingModuleID:   c.ConflictingModuleID,
			ConflictingDocumentID: c.ConflictingDocumentID,
			ConflictType:          c.ConflictType,
			Severity:              c.Severity,
			Confidence:            c.Confidence,
			Evidence:              c.Evidence,
			Suggestions:           c.ResolutionSuggestions,
			Status:                models.StatusOpen,
		}

		err := d.conflicts.Create(ctx, record)
		if errors.Is(err, models.ErrAlreadyExists) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, fmt.Errorf("store conflict %s: %w", c.PairKey(), err)
		}

		result.Created++
		result.IDs = append(result.IDs, record.ID)
	}

	d.logger.Info("conflicts stored",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// Get returns one persisted conflict
func (d *Detector) Get(ctx context.Context, id uuid.UUID) (*models.PersistedConflict, error) {
	return d.conflicts.GetByID(ctx, id)
}

// List returns the conflicts of a project, newest first
func (d *Detector) List(ctx context.Context, projectID uuid.UUID, status models.ConflictStatus) ([]*models.PersistedConflict, error) {
	return d.conflicts.List(ctx, storage.ConflictFilter{ProjectID: projectID, Status: status})
}

// Acknowledge moves an open conflict to acknowledged. Acknowledging an
// acknowledged conflict is a no-op; resolved conflicts cannot be reopened.
func (d *Detector) Acknowledge(ctx context.Context, id uuid.UUID) (*models.PersistedConflict, error) {
	c, err := d.conflicts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case models.StatusAcknowledged:
		return c, nil
	case models.StatusResolved:
		return nil, fmt.Errorf("%w: conflict %s is already resolved", models.ErrInvalidInput, id)
	}

	c.Status = models.StatusAcknowledged
	if err := d.conflicts.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
