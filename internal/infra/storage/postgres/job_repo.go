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

const jobColumns = `id, batch_id, tracking_id, attempts, max_attempts, status,
	last_error, error_code, next_retry_at, started_at, completed_at, created_at`

type JobRepo struct {
	q sqlx.ExtContext
}

func (r *JobRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)
	if err := sqlx.GetContext(ctx, r.q, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (r *JobRepo) ListByBatch(ctx context.Context, batchID string) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE batch_id = $1 ORDER BY created_at ASC`, jobColumns)
	if err := sqlx.SelectContext(ctx, r.q, &jobs, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ClaimNext claims the batch's next runnable job in a single statement. The
// subquery locks the candidate row (skipping rows locked by a concurrent
// tick) and the outer status guard makes the claim conditional, so two
// overlapping ticks can never both win the same job. The NOT EXISTS clause
// enforces one in-flight job per batch; it is only sound while the caller
// holds the batch row lock (BatchRepo.Lock), which serializes claims that
// would otherwise race on snapshots taken before each other's commit.
func (r *JobRepo) ClaimNext(ctx context.Context, batchID string, now time.Time) (*domain.Job, error) {
	query := fmt.Sprintf(`
		UPDATE jobs
		SET status = 'processing', started_at = $2, attempts = attempts + 1, next_retry_at = NULL
		WHERE id = (
			SELECT id FROM jobs
			WHERE batch_id = $1
			  AND (
			        (status = 'queued' AND (next_retry_at IS NULL OR next_retry_at <= $2))
			     OR (status = 'retrying' AND next_retry_at <= $2)
			  )
			  AND NOT EXISTS (
			        SELECT 1 FROM jobs p WHERE p.batch_id = $1 AND p.status = 'processing'
			  )
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status IN ('queued', 'retrying')
		RETURNING %s`, jobColumns)

	var job domain.Job
	if err := sqlx.GetContext(ctx, r.q, &job, query, batchID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return &job, nil
}

func (r *JobRepo) ListStuckExhausted(ctx context.Context, olderThan time.Time) ([]*domain.Job, error) {
	var jobs []*domain.Job
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = 'processing' AND started_at < $1 AND attempts >= max_attempts
		ORDER BY created_at ASC`, jobColumns)
	if err := sqlx.SelectContext(ctx, r.q, &jobs, query, olderThan); err != nil {
		return nil, fmt.Errorf("failed to list exhausted stuck jobs: %w", err)
	}
	return jobs, nil
}

// ResetStuck requeues only jobs with budget left; exhausted ones are picked
// up by ListStuckExhausted and failed terminally, keeping attempts bounded
// by max_attempts.
func (r *JobRepo) ResetStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', started_at = NULL
		WHERE status = 'processing' AND started_at < $1 AND attempts < max_attempts`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *JobRepo) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return r.guardedExec(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = $2, last_error = '', error_code = ''
		WHERE id = $1 AND status = 'processing'`, id, at)
}

func (r *JobRepo) MarkRetrying(ctx context.Context, id, errMsg string, code domain.ErrorClass, nextRetryAt time.Time) error {
	return r.guardedExec(ctx, `
		UPDATE jobs
		SET status = 'retrying', last_error = $2, error_code = $3, next_retry_at = $4, started_at = NULL
		WHERE id = $1 AND status = 'processing'`, id, errMsg, code, nextRetryAt)
}

func (r *JobRepo) MarkFailed(ctx context.Context, id, errMsg string, code domain.ErrorClass, at time.Time) error {
	return r.guardedExec(ctx, `
		UPDATE jobs
		SET status = 'failed', last_error = $2, error_code = $3, completed_at = $4, started_at = NULL
		WHERE id = $1 AND status = 'processing'`, id, errMsg, code, at)
}

// RequeueForQuota returns the job to the queue without charging the attempt:
// the quota rejection was the remote API's fault, not the job's.
func (r *JobRepo) RequeueForQuota(ctx context.Context, id, errMsg string) error {
	return r.guardedExec(ctx, `
		UPDATE jobs
		SET status = 'queued', attempts = GREATEST(attempts - 1, 0),
		    last_error = $2, error_code = $3, started_at = NULL
		WHERE id = $1 AND status = 'processing'`, id, errMsg, domain.ErrorClassQuota)
}

func (r *JobRepo) CountByStatus(ctx context.Context, batchID string) (map[domain.JobStatus]int, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM jobs WHERE batch_id = $1 GROUP BY status`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *JobRepo) CountByErrorCode(ctx context.Context, batchID string, code domain.ErrorClass) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `
		SELECT COUNT(*) FROM jobs WHERE batch_id = $1 AND error_code = $2`, batchID, code)
	if err != nil {
		return 0, fmt.Errorf("failed to count error codes: %w", err)
	}
	return count, nil
}

// guardedExec runs a conditional update and reports ErrNotFound when the
// guard did not match, surfacing lost claims instead of silently ignoring
// them.
func (r *JobRepo) guardedExec(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
