package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// ConflictRepository is the in-memory storage.ConflictRepository. Create
// checks and inserts under one lock, so the active-pair rule holds for
// concurrent callers.
type ConflictRepository struct{ s *Store }

func (r *ConflictRepository) Create(_ context.Context, c *models.PersistedConflict) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if c.PairKey == "" {
		_, _, c.PairKey = models.CanonicalPair(c.ModuleID, c.ConflictingModuleID)
	}
	for _, existing := range r.s.conflicts {
		if existing.PairKey == c.PairKey && existing.Active() {
			return models.ErrAlreadyExists
		}
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = r.s.now()
	}
	if c.Status == "" {
		c.Status = models.StatusOpen
	}
	r.s.conflicts[c.ID] = cloneConflict(c)
	return nil
}

func (r *ConflictRepository) GetByID(_ context.Context, id uuid.UUID) (*models.PersistedConflict, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.conflicts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneConflict(c), nil
}

// List returns the conflicts of a project, most severe and newest first
func (r *ConflictRepository) List(_ context.Context, filter storage.ConflictFilter) ([]*models.PersistedConflict, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.PersistedConflict
	for _, c := range r.s.conflicts {
		if c.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, cloneConflict(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Severity.Rank(), out[j].Severity.Rank(); ri != rj {
			return ri > rj
		}
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *ConflictRepository) Update(_ context.Context, c *models.PersistedConflict) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.conflicts[c.ID]
	if !ok {
		return models.ErrNotFound
	}
	existing.Status = c.Status
	existing.ResolvedAt = c.ResolvedAt
	existing.ResolvedBy = c.ResolvedBy
	existing.ResolutionStrategy = c.ResolutionStrategy
	existing.ResolutionNote = c.ResolutionNote
	return nil
}

func cloneConflict(c *models.PersistedConflict) *models.PersistedConflict {
	cp := *c
	cp.Suggestions = append([]string(nil), c.Suggestions...)
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// ResolutionRepository is the in-memory storage.ResolutionRepository
type ResolutionRepository struct{ s *Store }

// Apply checks every precondition before it writes, so a failed batch leaves
// the store untouched
func (r *ResolutionRepository) Apply(_ context.Context, batch storage.ResolutionBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.conflicts[batch.Conflict.ID]
	if !ok {
		return models.ErrNotFound
	}
	if !existing.Active() {
		return fmt.Errorf("%w: conflict %s is %s", models.ErrInvalidInput, existing.ID, existing.Status)
	}
	for _, m := range batch.Updated {
		if _, ok := r.s.modules[m.ID]; !ok {
			return fmt.Errorf("update module %s: %w", m.ID, models.ErrNotFound)
		}
	}
	for _, id := range batch.Ungrounded {
		if _, ok := r.s.modules[id]; !ok {
			return fmt.Errorf("unground module %s: %w", id, models.ErrNotFound)
		}
	}
	for _, id := range batch.Deleted {
		if _, ok := r.s.modules[id]; !ok {
			return fmt.Errorf("delete module %s: %w", id, models.ErrNotFound)
		}
	}

	now := r.s.now()
	for _, m := range batch.Updated {
		m.UpdatedAt = now
		r.s.modules[m.ID] = cloneModule(m)
	}
	for _, id := range batch.Ungrounded {
		r.s.modules[id].IsGrounded = false
		r.s.modules[id].UpdatedAt = now
	}
	deleted := make(map[uuid.UUID]bool, len(batch.Deleted))
	for _, id := range batch.Deleted {
		deleted[id] = true
	}
	if len(deleted) > 0 {
		r.s.deleteModulesLocked(func(m *models.Module) bool { return deleted[m.ID] })
	}

	existing.Status = batch.Conflict.Status
	existing.ResolvedAt = batch.Conflict.ResolvedAt
	existing.ResolvedBy = batch.Conflict.ResolvedBy
	existing.ResolutionStrategy = batch.Conflict.ResolutionStrategy
	existing.ResolutionNote = batch.Conflict.ResolutionNote

	r.s.appendResolutionLocked(batch.Record)
	return nil
}

func (r *ResolutionRepository) Append(_ context.Context, record *models.ResolutionRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.appendResolutionLocked(record)
	return nil
}

func (s *Store) appendResolutionLocked(record *models.ResolutionRecord) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	cp := *record
	cp.Changes = append([]models.ModuleChange(nil), record.Changes...)
	s.resolutions[record.ConflictID] = append(s.resolutions[record.ConflictID], &cp)
}

func (r *ResolutionRepository) ListByConflict(_ context.Context, conflictID uuid.UUID) ([]*models.ResolutionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	recs := r.s.resolutions[conflictID]
	out := make([]*models.ResolutionRecord, len(recs))
	for i, rec := range recs {
		cp := *rec
		cp.Changes = append([]models.ModuleChange(nil), rec.Changes...)
		out[i] = &cp
	}
	return out, nil
}
