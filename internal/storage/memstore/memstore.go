// Package memstore provides in-memory implementations of the storage
// repositories. All repositories of one Store share state, so deleting a
// module also drops its embeddings, as the PostgreSQL implementation does.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// Store holds every entity in memory
type Store struct {
	mu sync.RWMutex

	documents   map[uuid.UUID]*models.Document
	modules     map[uuid.UUID]*models.Module
	moduleOrder []uuid.UUID
	embeddings  map[uuid.UUID][]*models.EmbeddingRecord
	conflicts   map[uuid.UUID]*models.PersistedConflict
	resolutions map[uuid.UUID][]*models.ResolutionRecord

	now func() time.Time
}

// New creates an empty Store
func New() *Store {
	return &Store{
		documents:   make(map[uuid.UUID]*models.Document),
		modules:     make(map[uuid.UUID]*models.Module),
		embeddings:  make(map[uuid.UUID][]*models.EmbeddingRecord),
		conflicts:   make(map[uuid.UUID]*models.PersistedConflict),
		resolutions: make(map[uuid.UUID][]*models.ResolutionRecord),
		now:         time.Now,
	}
}

// Documents returns the document repository view
func (s *Store) Documents() *DocumentRepository { return &DocumentRepository{s: s} }

// Modules returns the module repository view
func (s *Store) Modules() *ModuleRepository { return &ModuleRepository{s: s} }

// Embeddings returns the embedding repository view
func (s *Store) Embeddings() *EmbeddingRepository { return &EmbeddingRepository{s: s} }

// Conflicts returns the conflict repository view
func (s *Store) Conflicts() *ConflictRepository { return &ConflictRepository{s: s} }

// Resolutions returns the resolution audit view
func (s *Store) Resolutions() *ResolutionRepository { return &ResolutionRepository{s: s} }

var (
	_ storage.DocumentRepository   = (*DocumentRepository)(nil)
	_ storage.ModuleRepository     = (*ModuleRepository)(nil)
	_ storage.EmbeddingRepository  = (*EmbeddingRepository)(nil)
	_ storage.ConflictRepository   = (*ConflictRepository)(nil)
	_ storage.ResolutionRepository = (*ResolutionRepository)(nil)
)

// DocumentRepository is the in-memory storage.DocumentRepository
type DocumentRepository struct{ s *Store }

func (r *DocumentRepository) Create(_ context.Context, document *models.Document) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if document.ID == uuid.Nil {
		document.ID = uuid.New()
	}
	now := r.s.now()
	if document.CreatedAt.IsZero() {
		document.CreatedAt = now
	}
	if document.UpdatedAt.IsZero() {
		document.UpdatedAt = now
	}
	if _, ok := r.s.documents[document.ID]; ok {
		return fmt.Errorf("document %s: %w", document.ID, models.ErrAlreadyExists)
	}

	cp := *document
	r.s.documents[document.ID] = &cp
	return nil
}

func (r *DocumentRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.documents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *DocumentRepository) GetByHash(_ context.Context, projectID uuid.UUID, hash string) (*models.Document, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, d := range r.s.documents {
		if d.ProjectID == projectID && d.ContentHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

// Delete removes the document, its modules and every embedding they own
func (r *DocumentRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.documents, id)
	delete(r.s.embeddings, id)
	r.s.deleteModulesLocked(func(m *models.Module) bool { return m.DocumentID == id })
	return nil
}

// ModuleRepository is the in-memory storage.ModuleRepository
type ModuleRepository struct{ s *Store }

// CreateBatch inserts all modules or none
func (r *ModuleRepository) CreateBatch(_ context.Context, modules []*models.Module) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	seen := make(map[string]bool, len(modules))
	for _, m := range modules {
		if m.ID != uuid.Nil {
			if _, ok := r.s.modules[m.ID]; ok {
				return fmt.Errorf("module %s: %w", m.ID, models.ErrAlreadyExists)
			}
		}
		key := m.DocumentID.String() + "/" + m.ModuleKey
		if seen[key] || r.s.hasModuleKeyLocked(m.DocumentID, m.ModuleKey) {
			return fmt.Errorf("%w: %s", models.ErrDuplicateModuleKey, m.ModuleKey)
		}
		seen[key] = true
	}

	now := r.s.now()
	for _, m := range modules {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		if m.UpdatedAt.IsZero() {
			m.UpdatedAt = now
		}
		r.s.modules[m.ID] = cloneModule(m)
		r.s.moduleOrder = append(r.s.moduleOrder, m.ID)
	}
	return nil
}

func (r *ModuleRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Module, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.modules[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneModule(m), nil
}

func (r *ModuleRepository) GetByDocumentID(_ context.Context, documentID uuid.UUID) ([]*models.Module, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.Module
	for _, id := range r.s.moduleOrder {
		if m := r.s.modules[id]; m.DocumentID == documentID {
			out = append(out, cloneModule(m))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *ModuleRepository) List(_ context.Context, filter storage.ModuleFilter) ([]*models.Module, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*models.Module
	for _, id := range r.s.moduleOrder {
		m := r.s.modules[id]
		if m.ProjectID != filter.ProjectID {
			continue
		}
		if filter.GroundedOnly && !(m.IsGrounded && m.IsActive) {
			continue
		}
		out = append(out, cloneModule(m))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *ModuleRepository) Update(_ context.Context, module *models.Module) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.modules[module.ID]; !ok {
		return models.ErrNotFound
	}
	module.UpdatedAt = r.s.now()
	r.s.modules[module.ID] = cloneModule(module)
	return nil
}

func (r *ModuleRepository) SetGrounded(_ context.Context, id uuid.UUID, grounded bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.modules[id]
	if !ok {
		return models.ErrNotFound
	}
	m.IsGrounded = grounded
	m.UpdatedAt = r.s.now()
	return nil
}

// Delete removes a module and its embeddings
func (r *ModuleRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.modules[id]; !ok {
		return models.ErrNotFound
	}
	r.s.deleteModulesLocked(func(m *models.Module) bool { return m.ID == id })
	return nil
}

func (r *ModuleRepository) DeleteByDocumentID(_ context.Context, documentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.deleteModulesLocked(func(m *models.Module) bool { return m.DocumentID == documentID })
	return nil
}

func (s *Store) hasModuleKeyLocked(documentID uuid.UUID, key string) bool {
	for _, m := range s.modules {
		if m.DocumentID == documentID && m.ModuleKey == key {
			return true
		}
	}
	return false
}

func (s *Store) deleteModulesLocked(match func(*models.Module) bool) {
	kept := s.moduleOrder[:0]
	for _, id := range s.moduleOrder {
		if m := s.modules[id]; match(m) {
			delete(s.modules, id)
			delete(s.embeddings, id)
			continue
		}
		kept = append(kept, id)
	}
	s.moduleOrder = kept
}

func cloneModule(m *models.Module) *models.Module {
	cp := *m
	cp.DependsOn = append([]string(nil), m.DependsOn...)
	cp.Tags = append([]string(nil), m.Tags...)
	return &cp
}
