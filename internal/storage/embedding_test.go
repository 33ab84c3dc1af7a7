package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/todmy/docguard/pkg/models"
)

var embeddingColumnNames = []string{
	"id", "owner_id", "owner_type", "project_id", "chunk_index", "chunk_text",
	"embedding", "model", "dimensions", "created_at",
}

func TestPostgresEmbeddingRepository_ReplaceForOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)
	owner := uuid.New()
	project := uuid.New()

	records := []*models.EmbeddingRecord{
		{OwnerID: owner, OwnerType: models.OwnerModule, ProjectID: project, ChunkIndex: 0, ChunkText: "a", Vector: []float32{1, 0}, Model: "m", Dimensions: 2},
		{OwnerID: owner, OwnerType: models.OwnerModule, ProjectID: project, ChunkIndex: 1, ChunkText: "b", Vector: []float32{0, 1}, Model: "m", Dimensions: 2},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM embeddings WHERE owner_id").WithArgs(owner).WillReturnResult(sqlmock.NewResult(0, 1))
	prep := mock.ExpectPrepare("INSERT INTO embeddings")
	for _, rec := range records {
		prep.ExpectExec().
			WithArgs(sqlmock.AnyArg(), owner, "module", project, rec.ChunkIndex, rec.ChunkText, sqlmock.AnyArg(), "m", 2, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	if err := repo.ReplaceForOwner(context.Background(), owner, records); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresEmbeddingRepository_ReplaceForOwnerRejectsForeignRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)
	owner := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM embeddings WHERE owner_id").WithArgs(owner).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO embeddings")
	mock.ExpectRollback()

	err = repo.ReplaceForOwner(context.Background(), owner, []*models.EmbeddingRecord{{OwnerID: uuid.New()}})
	if err == nil {
		t.Fatal("expected owner mismatch error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresEmbeddingRepository_ListByScopeGrounded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)
	project := uuid.New()
	owner := uuid.New()

	rows := sqlmock.NewRows(embeddingColumnNames).
		AddRow(uuid.NewString(), owner.String(), "module", project.String(), 0, "text", "[0.5,0.25,1]", "m", 3, time.Now())

	mock.ExpectQuery(`JOIN modules m ON (.+) WHERE e.project_id = \$1 AND e.owner_type = \$2`).
		WithArgs(project, "module").
		WillReturnRows(rows)

	records, err := repo.ListByScope(context.Background(), EmbeddingScope{
		ProjectID:    project,
		OwnerType:    models.OwnerModule,
		GroundedOnly: true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].OwnerID != owner {
		t.Errorf("expected owner %s, got %s", owner, records[0].OwnerID)
	}
	if len(records[0].Vector) != 3 || records[0].Vector[1] != 0.25 {
		t.Errorf("unexpected vector %v", records[0].Vector)
	}
}

func TestPostgresEmbeddingRepository_ListStaleOwners(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresEmbeddingRepository(db)
	project := uuid.New()
	owner := uuid.New()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectQuery(`GROUP BY (.+) HAVING MAX\(e.created_at\) < \$2`).
		WithArgs(project, cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"owner_id", "owner_type", "project_id"}).
			AddRow(owner.String(), "document", project.String()))

	owners, err := repo.ListStaleOwners(context.Background(), EmbeddingScope{ProjectID: project}, cutoff)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(owners) != 1 || owners[0].OwnerID != owner || owners[0].OwnerType != models.OwnerDocument {
		t.Errorf("unexpected stale owners %+v", owners)
	}
}
