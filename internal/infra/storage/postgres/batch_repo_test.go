package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/OneClickTag/tracksync/internal/infra/storage"
)

func newMockBatchRepo(t *testing.T) (*BatchRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	repo := &BatchRepo{q: sqlx.NewDb(db, "pgx")}
	return repo, mock, func() { _ = db.Close() }
}

func TestBatchRepo_Lock(t *testing.T) {
	repo, mock, cleanup := newMockBatchRepo(t)
	defer cleanup()
	ctx := context.Background()

	mock.ExpectQuery("SELECT id FROM batches").
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("batch-1"))
	if err := repo.Lock(ctx, "batch-1"); err != nil {
		t.Errorf("Lock() error = %v", err)
	}

	mock.ExpectQuery("SELECT id FROM batches").
		WithArgs("batch-gone").
		WillReturnError(sql.ErrNoRows)
	if err := repo.Lock(ctx, "batch-gone"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing batch, got %v", err)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestBatchRepo_Pause(t *testing.T) {
	repo, mock, cleanup := newMockBatchRepo(t)
	defer cleanup()
	ctx := context.Background()
	pausedAt := time.Now()
	resumeAfter := pausedAt.Add(65 * time.Second)

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "pauses a processing batch",
			setupMock: func() {
				mock.ExpectExec("UPDATE batches").
					WithArgs("batch-1", pausedAt, resumeAfter, "quota exceeded").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "already paused batch misses the guard",
			setupMock: func() {
				mock.ExpectExec("UPDATE batches").
					WithArgs("batch-1", pausedAt, resumeAfter, "quota exceeded").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: storage.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := repo.Pause(ctx, "batch-1", "quota exceeded", pausedAt, resumeAfter)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Pause() error = %v, want %v", err, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestBatchRepo_Finalize(t *testing.T) {
	repo, mock, cleanup := newMockBatchRepo(t)
	defer cleanup()
	ctx := context.Background()

	testCases := []struct {
		name          string
		rowsAffected  int64
		wantFinalized bool
	}{
		{name: "finalizes a processing batch", rowsAffected: 1, wantFinalized: true},
		{name: "completed batch is a no-op", rowsAffected: 0, wantFinalized: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock.ExpectExec("UPDATE batches").
				WithArgs("batch-1", 2, 1).
				WillReturnResult(sqlmock.NewResult(0, tc.rowsAffected))

			finalized, err := repo.Finalize(ctx, "batch-1", 2, 1)
			if err != nil {
				t.Fatalf("Finalize() error = %v", err)
			}
			if finalized != tc.wantFinalized {
				t.Errorf("Finalize() = %v, want %v", finalized, tc.wantFinalized)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestBatchRepo_ResumeDue(t *testing.T) {
	repo, mock, cleanup := newMockBatchRepo(t)
	defer cleanup()
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec("UPDATE batches").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ResumeDue(ctx, now)
	if err != nil {
		t.Fatalf("ResumeDue() error = %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 resumed batches, got %d", n)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
