package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
)

const batchColumns = `id, customer_id, tenant_id, requested_by, total_jobs,
	completed_jobs, failed_jobs, status, paused_at, resume_after, pause_reason, created_at`

type BatchRepo struct {
	q sqlx.ExtContext
}

func (r *BatchRepo) GetByID(ctx context.Context, id string) (*domain.Batch, error) {
	var batch domain.Batch
	query := fmt.Sprintf(`SELECT %s FROM batches WHERE id = $1`, batchColumns)
	if err := sqlx.GetContext(ctx, r.q, &batch, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return &batch, nil
}

func (r *BatchRepo) ListByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.Batch, error) {
	var batches []*domain.Batch
	query := fmt.Sprintf(`SELECT %s FROM batches WHERE status = $1 ORDER BY created_at ASC`, batchColumns)
	if err := sqlx.SelectContext(ctx, r.q, &batches, query, status); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// Lock takes the batch row lock until the surrounding transaction ends.
// Two replicas dispatching the same batch serialize here, so the claim
// statement of the loser sees the winner's committed in-flight job.
func (r *BatchRepo) Lock(ctx context.Context, id string) error {
	var locked string
	err := sqlx.GetContext(ctx, r.q, &locked, `SELECT id FROM batches WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to lock batch: %w", err)
	}
	return nil
}

func (r *BatchRepo) Pause(ctx context.Context, id, reason string, pausedAt, resumeAfter time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE batches
		SET status = 'paused', paused_at = $2, resume_after = $3, pause_reason = $4
		WHERE id = $1 AND status = 'processing'`, id, pausedAt, resumeAfter, reason)
	if err != nil {
		return fmt.Errorf("failed to pause batch: %w", err)
	}
	return requireRow(res)
}

func (r *BatchRepo) ResumeDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE batches
		SET status = 'processing', paused_at = NULL, resume_after = NULL, pause_reason = ''
		WHERE status = 'paused' AND resume_after <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to resume batches: %w", err)
	}
	return res.RowsAffected()
}

func (r *BatchRepo) IncrementCompleted(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE batches SET completed_jobs = completed_jobs + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment completed: %w", err)
	}
	return requireRow(res)
}

func (r *BatchRepo) IncrementFailed(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE batches SET failed_jobs = failed_jobs + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment failed: %w", err)
	}
	return requireRow(res)
}

// Finalize is conditional on the batch still processing, which makes it
// idempotent: a second finalize of the same batch matches zero rows.
func (r *BatchRepo) Finalize(ctx context.Context, id string, completed, failed int) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE batches
		SET status = 'completed', completed_jobs = $2, failed_jobs = $3,
		    paused_at = NULL, resume_after = NULL, pause_reason = ''
		WHERE id = $1 AND status = 'processing'`, id, completed, failed)
	if err != nil {
		return false, fmt.Errorf("failed to finalize batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
