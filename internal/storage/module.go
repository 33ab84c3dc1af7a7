package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/todmy/docguard/pkg/models"
)

const moduleColumns = `id, document_id, project_id, module_key, title, description, content, content_hash,
	start_line, end_line, heading_level, module_type, module_order, estimated_tokens,
	depends_on, tags, is_grounded, is_active, created_at, updated_at`

// PostgresModuleRepository implements ModuleRepository using PostgreSQL
type PostgresModuleRepository struct {
	db *sql.DB
}

var _ ModuleRepository = (*PostgresModuleRepository)(nil)

// NewPostgresModuleRepository creates a new PostgresModuleRepository
func NewPostgresModuleRepository(db *sql.DB) *PostgresModuleRepository {
	return &PostgresModuleRepository{db: db}
}

// CreateBatch inserts modules in a single transaction
func (r *PostgresModuleRepository) CreateBatch(ctx context.Context, modules []*models.Module) error {
	if len(modules) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO modules (`+moduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
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

		_, err := stmt.ExecContext(ctx,
			m.ID,
			m.DocumentID,
			m.ProjectID,
			m.ModuleKey,
			m.Title,
			m.Description,
			m.Content,
			m.ContentHash,
			m.StartLine,
			m.EndLine,
			m.HeadingLevel,
			string(m.ModuleType),
			m.Order,
			m.EstimatedTokens,
			pq.Array(m.DependsOn),
			pq.Array(m.Tags),
			m.IsGrounded,
			m.IsActive,
			m.CreatedAt,
			m.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert module %s: %w", m.ModuleKey, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a module by its ID
func (r *PostgresModuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE id = $1`

	m, err := scanModule(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return m, err
}

// GetByDocumentID retrieves all modules of a document in document order
func (r *PostgresModuleRepository) GetByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*models.Module, error) {
	query := `SELECT ` + moduleColumns + ` FROM modules WHERE document_id = $1 ORDER BY module_order ASC`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanModules(rows)
}

// List retrieves the modules of a project
func (r *PostgresModuleRepository) List(ctx context.Context, filter ModuleFilter) ([]*models.Module, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + moduleColumns + ` FROM modules WHERE project_id = $1`)
	args := []any{filter.ProjectID}

	if filter.GroundedOnly {
		sb.WriteString(` AND is_grounded AND is_active`)
	}
	sb.WriteString(` ORDER BY created_at ASC, module_order ASC`)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(fmt.Sprintf(` LIMIT $%d`, len(args)))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanModules(rows)
}

// Update writes the mutable fields of a module
func (r *PostgresModuleRepository) Update(ctx context.Context, module *models.Module) error {
	module.UpdatedAt = time.Now()
	return updateModule(ctx, r.db, module)
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateModule(ctx context.Context, ex execer, module *models.Module) error {
	query := `
		UPDATE modules
		SET title = $2, description = $3, content = $4, content_hash = $5, estimated_tokens = $6,
			depends_on = $7, tags = $8, is_grounded = $9, is_active = $10, updated_at = $11
		WHERE id = $1
	`

	res, err := ex.ExecContext(ctx, query,
		module.ID,
		module.Title,
		module.Description,
		module.Content,
		module.ContentHash,
		module.EstimatedTokens,
		pq.Array(module.DependsOn),
		pq.Array(module.Tags),
		module.IsGrounded,
		module.IsActive,
		module.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetGrounded toggles the grounded flag of a module
func (r *PostgresModuleRepository) SetGrounded(ctx context.Context, id uuid.UUID, grounded bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE modules SET is_grounded = $2, updated_at = $3 WHERE id = $1`,
		id, grounded, time.Now(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a module and its embeddings
func (r *PostgresModuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE owner_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteByDocumentID removes all modules for a document
func (r *PostgresModuleRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE owner_id IN (SELECT id FROM modules WHERE document_id = $1)`,
		documentID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE document_id = $1`, documentID); err != nil {
		return err
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(row rowScanner) (*models.Module, error) {
	m := &models.Module{}
	var moduleType string
	err := row.Scan(
		&m.ID,
		&m.DocumentID,
		&m.ProjectID,
		&m.ModuleKey,
		&m.Title,
		&m.Description,
		&m.Content,
		&m.ContentHash,
		&m.StartLine,
		&m.EndLine,
		&m.HeadingLevel,
		&moduleType,
		&m.Order,
		&m.EstimatedTokens,
		pq.Array(&m.DependsOn),
		pq.Array(&m.Tags),
		&m.IsGrounded,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ModuleType = models.ParseModuleType(moduleType)
	return m, nil
}

func scanModules(rows *sql.Rows) ([]*models.Module, error) {
	var modules []*models.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return modules, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
