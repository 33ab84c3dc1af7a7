// Package ingest runs the document pipeline: persist the document, decompose
// it, persist its modules and index document and module text.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/todmy/docguard/internal/decompose"
	"github.com/todmy/docguard/internal/embeddings"
	"github.com/todmy/docguard/internal/storage"
	"github.com/todmy/docguard/pkg/models"
)

// Request describes one document to ingest
type Request struct {
	ProjectID uuid.UUID
	Path      string
	Content   string
	Options   decompose.Options
	// Grounded marks every new module as authoritative
	Grounded bool
}

// Result is the outcome of Ingest
type Result struct {
	Document *models.Document    `json:"document"`
	Modules  []*models.Module    `json:"modules"`
	Summary  decompose.Summary   `json:"summary"`
	Warnings []decompose.Warning `json:"warnings,omitempty"`
	// Unchanged is set when the project already holds identical content
	Unchanged bool         `json:"unchanged"`
	Usage     models.Usage `json:"usage"`
}

// Pipeline wires the decomposer and the index to the stores
type Pipeline struct {
	documents  storage.DocumentRepository
	modules    storage.ModuleRepository
	decomposer *decompose.Decomposer
	index      *embeddings.Index
	logger     *zap.Logger
}

// NewPipeline creates a new Pipeline
func NewPipeline(
	documents storage.DocumentRepository,
	modules storage.ModuleRepository,
	decomposer *decompose.Decomposer,
	index *embeddings.Index,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		documents:  documents,
		modules:    modules,
		decomposer: decomposer,
		index:      index,
		logger:     logger,
	}
}

// Ingest stores and indexes a document. Content already present in the
// project is returned as is. A decomposition failure leaves nothing behind;
// an embedding failure keeps the modules so a later refresh can index them.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: document %q is empty", models.ErrInvalidInput, req.Path)
	}

	hash := models.HashContent(req.Content)
	existing, err := p.documents.GetByHash(ctx, req.ProjectID, hash)
	switch {
	case err == nil:
		modules, err := p.modules.GetByDocumentID(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Document: existing, Modules: modules, Unchanged: true}, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("lookup document: %w", err)
	}

	decomposed, err := p.decomposer.Decompose(ctx, req.Content, req.Path, req.Options)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ProjectID:   req.ProjectID,
		Path:        req.Path,
		Content:     req.Content,
		ContentHash: hash,
	}
	if err := p.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	for _, m := range decomposed.Modules {
		m.DocumentID = doc.ID
		m.ProjectID = req.ProjectID
		m.IsGrounded = req.Grounded
	}
	if err := p.modules.CreateBatch(ctx, decomposed.Modules); err != nil {
		if derr := p.documents.Delete(ctx, doc.ID); derr != nil {
			p.logger.Error("rollback document failed", zap.String("document_id", doc.ID.String()), zap.Error(derr))
		}
		return nil, fmt.Errorf("create modules: %w", err)
	}

	result := &Result{
		Document: doc,
		Modules:  decomposed.Modules,
		Summary:  decomposed.Summary,
		Warnings: decomposed.Warnings,
		Usage:    decomposed.Usage,
	}

	if err := p.indexAll(ctx, result); err != nil {
		return result, err
	}

	p.logger.Info("document ingested",
		zap.String("document_id", doc.ID.String()),
		zap.String("path", req.Path),
		zap.Int("modules", len(result.Modules)),
		zap.Int("warnings", len(result.Warnings)),
		zap.Float64("cost_usd", result.Usage.CostUSD),
	)
	return result, nil
}

func (p *Pipeline) indexAll(ctx context.Context, result *Result) error {
	doc := result.Document
	embedded, err := p.index.Embed(ctx, embeddings.Owner{ID: doc.ID, Type: models.OwnerDocument, ProjectID: doc.ProjectID}, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	result.Usage.Add(embedded.Usage)

	for _, m := range result.Modules {
		embedded, err := p.index.Embed(ctx, embeddings.Owner{ID: m.ID, Type: models.OwnerModule, ProjectID: m.ProjectID}, m.Content)
		if err != nil {
			return fmt.Errorf("embed module %s: %w", m.ID, err)
		}
		result.Usage.Add(embedded.Usage)
	}
	return nil
}

// Delete removes a document, its modules and their embeddings
func (p *Pipeline) Delete(ctx context.Context, documentID uuid.UUID) error {
	if _, err := p.documents.GetByID(ctx, documentID); err != nil {
		return err
	}
	return p.documents.Delete(ctx, documentID)
}

// LoadText resolves owner text for embeddings.Index.RefreshStale
func (p *Pipeline) LoadText(ctx context.Context, owner embeddings.Owner) (string, error) {
	if owner.Type == models.OwnerDocument {
		doc, err := p.documents.GetByID(ctx, owner.ID)
		if err != nil {
			return "", err
		}
		return doc.Content, nil
	}
	m, err := p.modules.GetByID(ctx, owner.ID)
	if err != nil {
		return "", err
	}
	return m.Content, nil
}
