package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/todmy/docguard/pkg/models"
)

var conflictColumnNames = []string{
	"id", "project_id", "module_id", "conflicting_module_id", "conflicting_document_id", "pair_key",
	"conflict_type", "severity", "confidence", "evidence", "suggestions", "status", "detected_at",
	"resolved_at", "resolved_by", "resolution_strategy", "resolution_note",
}

func newConflict() *models.PersistedConflict {
	return &models.PersistedConflict{
		ProjectID:             uuid.New(),
		ModuleID:              uuid.New(),
		ConflictingModuleID:   uuid.New(),
		ConflictingDocumentID: uuid.New(),
		ConflictType:          models.ConflictContent,
		Severity:              models.SeverityHigh,
		Confidence:            0.9,
		Evidence:              "100 vs 1000",
	}
}

func TestPostgresConflictRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresConflictRepository(db)
	c := newConflict()

	mock.ExpectExec(`INSERT INTO conflicts (.+) ON CONFLICT \(pair_key\)`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if c.ID == uuid.Nil {
		t.Error("expected ID to be generated")
	}
	if c.Status != models.StatusOpen {
		t.Errorf("expected open status, got %s", c.Status)
	}
	_, _, key := models.CanonicalPair(c.ConflictingModuleID, c.ModuleID)
	if c.PairKey != key {
		t.Errorf("expected canonical pair key %s, got %s", key, c.PairKey)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresConflictRepository_CreateDuplicatePair(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresConflictRepository(db)

	mock.ExpectExec("INSERT INTO conflicts").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Create(context.Background(), newConflict()); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	mock.ExpectExec("INSERT INTO conflicts").WillReturnError(&pq.Error{Code: "23505"})
	if err := repo.Create(context.Background(), newConflict()); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for unique violation, got %v", err)
	}
}

func TestPostgresConflictRepository_ListByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresConflictRepository(db)
	project := uuid.New()
	resolvedAt := time.Now()

	rows := sqlmock.NewRows(conflictColumnNames).AddRow(
		uuid.NewString(), project.String(), uuid.NewString(), uuid.NewString(), uuid.NewString(), "a:b",
		"version", "critical", 0.85, "v1 vs v2", "{merge,clarify}", "resolved", time.Now(),
		resolvedAt, "user-1", "merge", "merged",
	)

	mock.ExpectQuery(`FROM conflicts WHERE project_id = \$1 AND status = \$2 ORDER BY CASE severity (.+) END DESC, detected_at DESC`).
		WithArgs(project, "resolved").
		WillReturnRows(rows)

	conflicts, err := repo.List(context.Background(), ConflictFilter{ProjectID: project, Status: models.StatusResolved})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Severity != models.SeverityCritical || c.ConflictType != models.ConflictVersion {
		t.Errorf("unexpected classification %s/%s", c.Severity, c.ConflictType)
	}
	if c.ResolvedAt == nil {
		t.Error("expected resolved_at")
	}
	if len(c.Suggestions) != 2 {
		t.Errorf("expected 2 suggestions, got %v", c.Suggestions)
	}
	if c.Active() {
		t.Error("resolved conflict should not be active")
	}
}

func TestPostgresConflictRepository_UpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresConflictRepository(db)

	mock.ExpectExec("UPDATE conflicts").WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Update(context.Background(), &models.PersistedConflict{ID: uuid.New(), Status: models.StatusAcknowledged})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresResolutionRepository_AppendAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresResolutionRepository(db)
	conflictID := uuid.New()
	moduleID := uuid.New()

	mock.ExpectExec("INSERT INTO resolutions").
		WithArgs(sqlmock.AnyArg(), conflictID, "replace", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Append(context.Background(), &models.ResolutionRecord{
		ConflictID: conflictID,
		Strategy:   models.StrategyReplace,
		ResolvedBy: "user-1",
		Changes:    []models.ModuleChange{{ModuleID: moduleID, Action: models.ActionDelete}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	changes := `[{"module_id":"` + moduleID.String() + `","action":"delete"}]`
	mock.ExpectQuery("SELECT (.+) FROM resolutions").
		WithArgs(conflictID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conflict_id", "strategy", "resolved_by", "changes", "created_at"}).
			AddRow(uuid.NewString(), conflictID.String(), "replace", "user-1", []byte(changes), time.Now()))

	records, err := repo.ListByConflict(context.Background(), conflictID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 1 || len(records[0].Changes) != 1 || records[0].Changes[0].ModuleID != moduleID {
		t.Errorf("unexpected records %+v", records)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func newResolutionBatch() (ResolutionBatch, uuid.UUID, uuid.UUID) {
	c := newConflict()
	c.ID = uuid.New()
	now := time.Now()
	c.Status = models.StatusResolved
	c.ResolvedAt = &now
	c.ResolvedBy = "user-1"
	c.ResolutionStrategy = models.StrategyMerge

	source := &models.Module{ID: c.ModuleID, Title: "limits", Content: "Rate limit: 100 req/min.", IsActive: true}
	return ResolutionBatch{
		Conflict: c,
		Updated:  []*models.Module{source},
		Deleted:  []uuid.UUID{c.ConflictingModuleID},
		Record: &models.ResolutionRecord{
			ConflictID: c.ID,
			Strategy:   models.StrategyMerge,
			ResolvedBy: "user-1",
			Changes: []models.ModuleChange{
				{ModuleID: c.ModuleID, Action: models.ActionUpdate},
				{ModuleID: c.ConflictingModuleID, Action: models.ActionDelete},
			},
		},
	}, c.ModuleID, c.ConflictingModuleID
}

func TestPostgresResolutionRepository_Apply(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresResolutionRepository(db)
	batch, sourceID, deletedID := newResolutionBatch()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM conflicts WHERE id = \$1 FOR UPDATE`).
		WithArgs(batch.Conflict.ID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("acknowledged"))
	mock.ExpectExec("UPDATE modules").
		WithArgs(sourceID, "limits", "", "Rate limit: 100 req/min.", "", 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), false, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM embeddings").WithArgs(deletedID).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM modules").WithArgs(deletedID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE conflicts").
		WithArgs(batch.Conflict.ID, "resolved", sqlmock.AnyArg(), "user-1", "merge", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO resolutions").
		WithArgs(sqlmock.AnyArg(), batch.Conflict.ID, "merge", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := repo.Apply(context.Background(), batch); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if batch.Record.ID == uuid.Nil {
		t.Error("expected the record ID to be assigned")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresResolutionRepository_ApplyRollsBackOnDeleteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresResolutionRepository(db)
	batch, _, deletedID := newResolutionBatch()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM conflicts").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("open"))
	mock.ExpectExec("UPDATE modules").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM embeddings").WithArgs(deletedID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM modules").WithArgs(deletedID).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = repo.Apply(context.Background(), batch)
	if err == nil || !strings.Contains(err.Error(), "delete module") {
		t.Fatalf("expected a delete error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresResolutionRepository_ApplyRejectsResolvedConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	repo := NewPostgresResolutionRepository(db)
	batch, _, _ := newResolutionBatch()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status FROM conflicts").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("resolved"))
	mock.ExpectRollback()

	err = repo.Apply(context.Background(), batch)
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
