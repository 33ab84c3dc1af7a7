package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/todmy/docguard/pkg/models"
)

// PostgresResolutionRepository implements ResolutionRepository using PostgreSQL
type PostgresResolutionRepository struct {
	db *sql.DB
}

var _ ResolutionRepository = (*PostgresResolutionRepository)(nil)

// NewPostgresResolutionRepository creates a new PostgresResolutionRepository
func NewPostgresResolutionRepository(db *sql.DB) *PostgresResolutionRepository {
	return &PostgresResolutionRepository{db: db}
}

// Apply commits a resolution in one transaction. The conflict row is locked
// first, so two concurrent resolutions of the same conflict cannot both pass
// the active check.
func (r *PostgresResolutionRepository) Apply(ctx context.Context, batch ResolutionBatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM conflicts WHERE id = $1 FOR UPDATE`, batch.Conflict.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}
	current := models.PersistedConflict{Status: models.ConflictStatus(status)}
	if !current.Active() {
		return fmt.Errorf("%w: conflict %s is %s", models.ErrInvalidInput, batch.Conflict.ID, status)
	}

	for _, m := range batch.Updated {
		if err := updateModule(ctx, tx, m); err != nil {
			return fmt.Errorf("update module %s: %w", m.ID, err)
		}
	}
	for _, id := range batch.Ungrounded {
		res, err := tx.ExecContext(ctx,
			`UPDATE modules SET is_grounded = false, updated_at = $2 WHERE id = $1`,
			id, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("unground module %s: %w", id, err)
		}
		if err := requireRow(res); err != nil {
			return fmt.Errorf("unground module %s: %w", id, err)
		}
	}
	for _, id := range batch.Deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE owner_id = $1`, id); err != nil {
			return fmt.Errorf("delete module %s: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete module %s: %w", id, err)
		}
		if err := requireRow(res); err != nil {
			return fmt.Errorf("delete module %s: %w", id, err)
		}
	}

	if err := updateConflict(ctx, tx, batch.Conflict); err != nil {
		return fmt.Errorf("mark conflict resolved: %w", err)
	}
	if err := insertResolution(ctx, tx, batch.Record); err != nil {
		return fmt.Errorf("append resolution record: %w", err)
	}

	return tx.Commit()
}

// Append stores one audit record
func (r *PostgresResolutionRepository) Append(ctx context.Context, record *models.ResolutionRecord) error {
	return insertResolution(ctx, r.db, record)
}

func insertResolution(ctx context.Context, ex execer, record *models.ResolutionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	changes, err := json.Marshal(record.Changes)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO resolutions (id, conflict_id, strategy, resolved_by, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		record.ID,
		record.ConflictID,
		string(record.Strategy),
		record.ResolvedBy,
		changes,
		record.CreatedAt,
	)
	return err
}

// ListByConflict returns the audit trail of a conflict, oldest first
func (r *PostgresResolutionRepository) ListByConflict(ctx context.Context, conflictID uuid.UUID) ([]*models.ResolutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conflict_id, strategy, resolved_by, changes, created_at
		FROM resolutions
		WHERE conflict_id = $1
		ORDER BY created_at ASC
	`, conflictID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ResolutionRecord
	for rows.Next() {
		rec := &models.ResolutionRecord{}
		var strategy string
		var changes []byte
		if err := rows.Scan(&rec.ID, &rec.ConflictID, &strategy, &rec.ResolvedBy, &changes, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Strategy = models.Strategy(strategy)
		if err := json.Unmarshal(changes, &rec.Changes); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
