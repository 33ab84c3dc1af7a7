package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/todmy/docguard/pkg/models"
)

var moduleColumnNames = []string{
	"id", "document_id", "project_id", "module_key", "title", "description", "content", "content_hash",
	"start_line", "end_line", "heading_level", "module_type", "module_order", "estimated_tokens",
	"depends_on", "tags", "is_grounded", "is_active", "created_at", "updated_at",
}

func TestPostgresModuleRepository_CreateBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresModuleRepository(db)

	modules := []*models.Module{
		{DocumentID: uuid.New(), ModuleKey: "intro", Title: "Intro", ModuleType: models.ModuleOverview},
		{DocumentID: uuid.New(), ModuleKey: "limits", Title: "Limits", ModuleType: models.ModuleReference, Order: 1},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO modules")
	for range modules {
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	if err := repo.CreateBatch(context.Background(), modules); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, m := range modules {
		if m.ID == uuid.Nil {
			t.Errorf("expected ID for %s", m.ModuleKey)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresModuleRepository_CreateBatchRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresModuleRepository(db)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO modules").ExpectExec().WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err = repo.CreateBatch(context.Background(), []*models.Module{{ModuleKey: "dup"}})
	if err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresModuleRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresModuleRepository(db)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(moduleColumnNames).AddRow(
		id.String(), uuid.NewString(), uuid.NewString(), "rate-limits", "Rate Limits", "", "limit is 100",
		"hash", 3, 9, 2, "reference", 1, 4, "{intro}", "{api,limits}", true, true, now, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM modules WHERE id").
		WithArgs(id).
		WillReturnRows(rows)

	m, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if m.ModuleKey != "rate-limits" {
		t.Errorf("expected key rate-limits, got %s", m.ModuleKey)
	}
	if m.ModuleType != models.ModuleReference {
		t.Errorf("expected reference type, got %s", m.ModuleType)
	}
	if len(m.DependsOn) != 1 || m.DependsOn[0] != "intro" {
		t.Errorf("unexpected depends_on %v", m.DependsOn)
	}
	if len(m.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", m.Tags)
	}
	if !m.IsGrounded {
		t.Error("expected grounded module")
	}
}

func TestPostgresModuleRepository_ListGroundedWithLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresModuleRepository(db)
	projectID := uuid.New()

	mock.ExpectQuery(`FROM modules WHERE project_id = \$1 AND is_grounded AND is_active (.+) LIMIT \$2`).
		WithArgs(projectID, 5).
		WillReturnRows(sqlmock.NewRows(moduleColumnNames))

	modules, err := repo.List(context.Background(), ModuleFilter{ProjectID: projectID, GroundedOnly: true, Limit: 5})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(modules) != 0 {
		t.Errorf("expected no modules, got %d", len(modules))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresModuleRepository_SetGroundedNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresModuleRepository(db)
	id := uuid.New()

	mock.ExpectExec("UPDATE modules SET is_grounded").
		WithArgs(id, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SetGrounded(context.Background(), id, true)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresModuleRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresModuleRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM embeddings WHERE owner_id").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM modules WHERE id").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Delete(context.Background(), id); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
