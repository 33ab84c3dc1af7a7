package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// EmbeddingRepository is the in-memory storage.EmbeddingRepository
type EmbeddingRepository struct{ s *Store }

func (r *EmbeddingRepository) GetByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.EmbeddingRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return cloneRecords(r.s.embeddings[ownerID]), nil
}

// ReplaceForOwner swaps the owner's chunk set under the write lock
func (r *EmbeddingRepository) ReplaceForOwner(_ context.Context, ownerID uuid.UUID, records []*models.EmbeddingRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	next := make([]*models.EmbeddingRecord, 0, len(records))
	for _, rec := range records {
		if rec.OwnerID != ownerID {
			return fmt.Errorf("record owner %s does not match %s", rec.OwnerID, ownerID)
		}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		next = append(next, cloneRecord(rec))
	}
	sort.Slice(next, func(i, j int) bool { return next[i].ChunkIndex < next[j].ChunkIndex })

	if len(next) == 0 {
		delete(r.s.embeddings, ownerID)
		return nil
	}
	r.s.embeddings[ownerID] = next
	return nil
}

func (r *EmbeddingRepository) DeleteByOwner(_ context.Context, ownerID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.embeddings, ownerID)
	return nil
}

func (r *EmbeddingRepository) ListByScope(_ context.Context, scope storage.EmbeddingScope) ([]*models.EmbeddingRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.EmbeddingRecord
	for _, owner := range r.s.ownersInScopeLocked(scope) {
		out = append(out, cloneRecords(r.s.embeddings[owner])...)
	}
	return out, nil
}

func (r *EmbeddingRepository) ListStaleOwners(_ context.Context, scope storage.EmbeddingScope, before time.Time) ([]storage.StaleOwner, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []storage.StaleOwner
	for _, owner := range r.s.ownersInScopeLocked(scope) {
		recs := r.s.embeddings[owner]
		newest := recs[0].CreatedAt
		for _, rec := range recs[1:] {
			if rec.CreatedAt.After(newest) {
				newest = rec.CreatedAt
			}
		}
		if newest.Before(before) {
			out = append(out, storage.StaleOwner{
				OwnerID:   owner,
				OwnerType: recs[0].OwnerType,
				ProjectID: recs[0].ProjectID,
			})
		}
	}
	return out, nil
}

// ownersInScopeLocked returns matching owners sorted by id
func (s *Store) ownersInScopeLocked(scope storage.EmbeddingScope) []uuid.UUID {
	var owners []uuid.UUID
	for owner, recs := range s.embeddings {
		if len(recs) == 0 {
			continue
		}
		head := recs[0]
		if head.ProjectID != scope.ProjectID {
			continue
		}
		if scope.OwnerType != "" && head.OwnerType != scope.OwnerType {
			continue
		}
		if scope.GroundedOnly {
			m, ok := s.modules[owner]
			if !ok || !m.IsGrounded || !m.IsActive {
				continue
			}
		}
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })
	return owners
}

func cloneRecord(rec *models.EmbeddingRecord) *models.EmbeddingRecord {
	cp := *rec
	cp.Vector = append([]float32(nil), rec.Vector...)
	return &cp
}

func cloneRecords(recs []*models.EmbeddingRecord) []*models.EmbeddingRecord {
	if len(recs) == 0 {
		return nil
	}
	out := make([]*models.EmbeddingRecord, len(recs))
	for i, rec := range recs {
		out[i] = cloneRecord(rec)
	}
	return out
}
