package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/todmy/docguard/pkg/models"
)

// PostgresEmbeddingRepository implements EmbeddingRepository using PostgreSQL with pgvector
type PostgresEmbeddingRepository struct {
	db *sql.DB
}

var _ EmbeddingRepository = (*PostgresEmbeddingRepository)(nil)

// NewPostgresEmbeddingRepository creates a new PostgresEmbeddingRepository
func NewPostgresEmbeddingRepository(db *sql.DB) *PostgresEmbeddingRepository {
	return &PostgresEmbeddingRepository{db: db}
}

const embeddingColumns = `e.id, e.owner_id, e.owner_type, e.project_id, e.chunk_index, e.chunk_text,
	e.embedding, e.model, e.dimensions, e.created_at`

// GetByOwner retrieves the chunks of one owner in chunk order
func (r *PostgresEmbeddingRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.EmbeddingRecord, error) {
	query := `SELECT ` + embeddingColumns + ` FROM embeddings e WHERE e.owner_id = $1 ORDER BY e.chunk_index ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

// ReplaceForOwner deletes the owner's records and inserts the new set in one transaction
func (r *PostgresEmbeddingRepository) ReplaceForOwner(ctx context.Context, ownerID uuid.UUID, records []*models.EmbeddingRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE owner_id = $1`, ownerID); err != nil {
		return err
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (id, owner_id, owner_type, project_id, chunk_index, chunk_text, embedding, model, dimensions, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now()
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

			_, err := stmt.ExecContext(ctx,
				rec.ID,
				rec.OwnerID,
				string(rec.OwnerType),
				rec.ProjectID,
				rec.ChunkIndex,
				rec.ChunkText,
				pgvector.NewVector(rec.Vector),
				rec.Model,
				rec.Dimensions,
				rec.CreatedAt,
			)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeleteByOwner removes every chunk of an owner
func (r *PostgresEmbeddingRepository) DeleteByOwner(ctx context.Context, ownerID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM embeddings WHERE owner_id = $1`, ownerID)
	return err
}

// ListByScope retrieves every chunk visible in scope
func (r *PostgresEmbeddingRepository) ListByScope(ctx context.Context, scope EmbeddingScope) ([]*models.EmbeddingRecord, error) {
	query, args := scopedQuery(`SELECT `+embeddingColumns+` FROM embeddings e`, scope)
	query += ` ORDER BY e.owner_id, e.chunk_index`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

// ListStaleOwners returns owners whose newest chunk was created before the cutoff
func (r *PostgresEmbeddingRepository) ListStaleOwners(ctx context.Context, scope EmbeddingScope, before time.Time) ([]StaleOwner, error) {
	base, args := scopedQuery(`SELECT e.owner_id, e.owner_type, e.project_id FROM embeddings e`, scope)
	args = append(args, before)
	query := base + fmt.Sprintf(` GROUP BY e.owner_id, e.owner_type, e.project_id HAVING MAX(e.created_at) < $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []StaleOwner
	for rows.Next() {
		var o StaleOwner
		var ownerType string
		if err := rows.Scan(&o.OwnerID, &ownerType, &o.ProjectID); err != nil {
			return nil, err
		}
		o.OwnerType = models.OwnerType(ownerType)
		owners = append(owners, o)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return owners, nil
}

func scopedQuery(selectFrom string, scope EmbeddingScope) (string, []any) {
	var sb strings.Builder
	sb.WriteString(selectFrom)
	if scope.GroundedOnly {
		sb.WriteString(` JOIN modules m ON m.id = e.owner_id AND m.is_grounded AND m.is_active`)
	}
	sb.WriteString(` WHERE e.project_id = $1`)
	args := []any{scope.ProjectID}
	if scope.OwnerType != "" {
		args = append(args, string(scope.OwnerType))
		sb.WriteString(fmt.Sprintf(` AND e.owner_type = $%d`, len(args)))
	}
	return sb.String(), args
}

func scanEmbeddings(rows *sql.Rows) ([]*models.EmbeddingRecord, error) {
	var records []*models.EmbeddingRecord
	for rows.Next() {
		rec := &models.EmbeddingRecord{}
		var ownerType string
		var vector pgvector.Vector
		err := rows.Scan(
			&rec.ID,
			&rec.OwnerID,
			&ownerType,
			&rec.ProjectID,
			&rec.ChunkIndex,
			&rec.ChunkText,
			&vector,
			&rec.Model,
			&rec.Dimensions,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.OwnerType = models.OwnerType(ownerType)
		rec.Vector = vector.Slice()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
