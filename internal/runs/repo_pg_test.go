package runs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var runColumns = []string{
	"id", "session_id", "source", "status", "files", "file_bytes", "rejected", "result", "stats",
	"error_kind", "error_message", "http_status", "artifacts", "duration_ms",
	"started_at", "completed_at", "created_at",
}

func newMock(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoCreateCompleted(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	res := sampleResult()
	run := Run{
		ID:          "6f1c7d2e-8a4b-4c1d-9e2f-0a1b2c3d4e5f",
		SessionID:   "sess-1",
		Source:      SourceAPI,
		Status:      StatusCompleted,
		Files:       []FileRef{{Name: "a.xyz", Bytes: 6, SHA256: "abc"}},
		FileBytes:   6,
		Result:      res,
		DurationMS:  12,
		StartedAt:   now,
		CompletedAt: now,
		CreatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(
			run.ID,
			run.SessionID,
			run.Source,
			run.Status,
			`[{"name":"a.xyz","bytes":6,"sha256":"abc"}]`,
			run.FileBytes,
			`[]`,
			sqlmock.AnyArg(), // result
			nil,              // stats
			nil,              // error_kind
			nil,              // error_message
			nil,              // http_status
			`[]`,
			run.DurationMS,
			run.StartedAt,
			run.CompletedAt,
			run.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	result := `{"points":[{"x":1,"y":2,"label":"t0"}],"explained_variance_ratio_all":[0.7,0.3],"cumulative_variance_ratio_all":[0.7,1]}`
	stats := `{"pointCount":1,"pc1Percent":70,"pc2Percent":30,"cumulativePercent":100}`

	rows := sqlmock.NewRows(runColumns).AddRow(
		"run-1", "sess-1", "web", StatusCompleted,
		[]byte(`[{"name":"a.xyz","bytes":6,"sha256":"abc"}]`), int64(6), []byte(`["b.txt"]`),
		result, stats,
		nil, nil, nil,
		[]byte(`["scatter.png"]`), int64(40),
		now, now, now,
	)
	mock.ExpectQuery("SELECT id, session_id").WithArgs("run-1").WillReturnRows(rows)

	run, err := repo.GetByID(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if run.Result == nil || len(run.Result.Points) != 1 || run.Result.Points[0].Label != "t0" {
		t.Fatalf("unexpected result %+v", run.Result)
	}
	if run.Stats == nil || run.Stats.PC2Text() != "30.0%" {
		t.Fatalf("unexpected stats %+v", run.Stats)
	}
	if len(run.Rejected) != 1 || !run.HasArtifact("scatter.png") {
		t.Fatalf("unexpected lists %+v", run)
	}
	if run.ErrorMessage != nil || run.HTTPStatus != 0 {
		t.Fatalf("expected no error fields, got %+v", run)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("SELECT id, session_id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoSetArtifacts(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("UPDATE runs").
		WithArgs(`["scatter.png","export.xlsx"]`, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE runs").
		WithArgs(`[]`, "run-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetArtifacts(context.Background(), "run-1", []string{"scatter.png", "export.xlsx"}); err != nil {
		t.Fatalf("SetArtifacts: %v", err)
	}
	if err := repo.SetArtifacts(context.Background(), "run-2", nil); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoListRecentClampsLimit(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("ORDER BY created_at DESC, id DESC").
		WithArgs(int64(100), int64(0)).
		WillReturnRows(sqlmock.NewRows(runColumns))

	runs, err := repo.ListRecent(context.Background(), 500, -3)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", runs)
	}
}
