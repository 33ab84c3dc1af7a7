package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/todmy/docguard/pkg/models"
)

// PostgresConflictRepository implements ConflictRepository using PostgreSQL.
// The partial unique index conflicts_active_pair_idx guarantees at most one
// open or acknowledged row per canonical pair.
type PostgresConflictRepository struct {
	db *sql.DB
}

var _ ConflictRepository = (*PostgresConflictRepository)(nil)

// NewPostgresConflictRepository creates a new PostgresConflictRepository
func NewPostgresConflictRepository(db *sql.DB) *PostgresConflictRepository {
	return &PostgresConflictRepository{db: db}
}

const conflictColumns = `id, project_id, module_id, conflicting_module_id, conflicting_document_id, pair_key,
	conflict_type, severity, confidence, evidence, suggestions, status, detected_at,
	resolved_at, resolved_by, resolution_strategy, resolution_note`

// Create inserts an open conflict unless its pair already has an active record
func (r *PostgresConflictRepository) Create(ctx context.Context, c *models.PersistedConflict) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now()
	}
	if c.Status == "" {
		c.Status = models.StatusOpen
	}
	if c.PairKey == "" {
		_, _, c.PairKey = models.CanonicalPair(c.ModuleID, c.ConflictingModuleID)
	}

	query := `
		INSERT INTO conflicts (` + conflictColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (pair_key) WHERE status IN ('open', 'acknowledged') DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.ProjectID,
		c.ModuleID,
		c.ConflictingModuleID,
		c.ConflictingDocumentID,
		c.PairKey,
		string(c.ConflictType),
		string(c.Severity),
		c.Confidence,
		c.Evidence,
		pq.Array(c.Suggestions),
		string(c.Status),
		c.DetectedAt,
		c.ResolvedAt,
		c.ResolvedBy,
		string(c.ResolutionStrategy),
		c.ResolutionNote,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.ErrAlreadyExists
		}
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrAlreadyExists
	}
	return nil
}

// GetByID retrieves a conflict by its ID
func (r *PostgresConflictRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PersistedConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE id = $1`

	c, err := scanConflict(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return c, err
}

// List retrieves the conflicts of a project, most severe and newest first
func (r *PostgresConflictRepository) List(ctx context.Context, filter ConflictFilter) ([]*models.PersistedConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE project_id = $1`
	args := []any{filter.ProjectID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY CASE severity
		WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0
		END DESC, detected_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*models.PersistedConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return conflicts, nil
}

// Update writes the lifecycle fields of a conflict
func (r *PostgresConflictRepository) Update(ctx context.Context, c *models.PersistedConflict) error {
	return updateConflict(ctx, r.db, c)
}

func updateConflict(ctx context.Context, ex execer, c *models.PersistedConflict) error {
	query := `
		UPDATE conflicts
		SET status = $2, resolved_at = $3, resolved_by = $4, resolution_strategy = $5, resolution_note = $6
		WHERE id = $1
	`

	res, err := ex.ExecContext(ctx, query,
		c.ID,
		string(c.Status),
		c.ResolvedAt,
		c.ResolvedBy,
		string(c.ResolutionStrategy),
		c.ResolutionNote,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanConflict(row rowScanner) (*models.PersistedConflict, error) {
	c := &models.PersistedConflict{}
	var conflictType, severity, status, strategy string
	var resolvedAt sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.ProjectID,
		&c.ModuleID,
		&c.ConflictingModuleID,
		&c.ConflictingDocumentID,
		&c.PairKey,
		&conflictType,
		&severity,
		&c.Confidence,
		&c.Evidence,
		pq.Array(&c.Suggestions),
		&status,
		&c.DetectedAt,
		&resolvedAt,
		&c.ResolvedBy,
		&strategy,
		&c.ResolutionNote,
	)
	if err != nil {
		return nil, err
	}

	c.ConflictType = models.ConflictType(conflictType)
	c.Severity = models.Severity(severity)
	c.Status = models.ConflictStatus(status)
	c.ResolutionStrategy = models.Strategy(strategy)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	return c, nil
}
