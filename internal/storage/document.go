package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/docguard/pkg/models"
)

// PostgresDocumentRepository implements DocumentRepository using PostgreSQL
type PostgresDocumentRepository struct {
	db *sql.DB
}

var _ DocumentRepository = (*PostgresDocumentRepository)(nil)

// NewPostgresDocumentRepository creates a new PostgresDocumentRepository
func NewPostgresDocumentRepository(db *sql.DB) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{db: db}
}

// Create inserts a new document into the database
func (r *PostgresDocumentRepository) Create(ctx context.Context, document *models.Document) error {
	if document.ID == uuid.Nil {
		document.ID = uuid.New()
	}

	now := time.Now()
	if document.CreatedAt.IsZero() {
		document.CreatedAt = now
	}
	if document.UpdatedAt.IsZero() {
		document.UpdatedAt = now
	}

	query := `
		INSERT INTO documents (id, project_id, path, content, content_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		document.ID,
		document.ProjectID,
		document.Path,
		document.Content,
		document.ContentHash,
		document.CreatedAt,
		document.UpdatedAt,
	)

	return err
}

// GetByID retrieves a document by its ID
func (r *PostgresDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `
		SELECT id, project_id, path, content, content_hash, created_at, updated_at
		FROM documents
		WHERE id = $1
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByHash retrieves a document by its content hash within a project
func (r *PostgresDocumentRepository) GetByHash(ctx context.Context, projectID uuid.UUID, hash string) (*models.Document, error) {
	query := `
		SELECT id, project_id, path, content, content_hash, created_at, updated_at
		FROM documents
		WHERE project_id = $1 AND content_hash = $2
	`

	return r.scanOne(r.db.QueryRowContext(ctx, query, projectID, hash))
}

// Delete removes a document together with its modules and every embedding they own
func (r *PostgresDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE owner_id = $1 OR owner_id IN (SELECT id FROM modules WHERE document_id = $1)
	`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE document_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresDocumentRepository) scanOne(row *sql.Row) (*models.Document, error) {
	document := &models.Document{}
	err := row.Scan(
		&document.ID,
		&document.ProjectID,
		&document.Path,
		&document.Content,
		&document.ContentHash,
		&document.CreatedAt,
		&document.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return document, nil
}
