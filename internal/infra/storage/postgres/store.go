package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
)

// Store implements storage.Store over PostgreSQL. Outside a transaction the
// queries run against the pool; WithinTx rebinds them to a *sqlx.Tx so every
// repository obtained from the inner Store shares the same transaction.
type Store struct {
	db *sqlx.DB        // nil when the store is transaction-scoped
	q  sqlx.ExtContext // db or tx
}

func (s *Store) Jobs() storage.JobRepository           { return &JobRepo{q: s.q} }
func (s *Store) Batches() storage.BatchRepository      { return &BatchRepo{q: s.q} }
func (s *Store) Trackings() storage.TrackingRepository { return &TrackingRepo{q: s.q} }
func (s *Store) Recommendations() storage.RecommendationRepository {
	return &RecommendationRepo{q: s.q}
}

// WithinTx runs fn against a transaction-scoped Store. All-or-nothing: any
// error from fn rolls the whole group back.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.db == nil {
		// Already inside a transaction; join it.
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateBatch persists a batch and its jobs in one transaction.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.Batch, jobs []*domain.Job) error {
	return s.WithinTx(ctx, func(txStore storage.Store) error {
		ts := txStore.(*Store)

		_, err := ts.q.ExecContext(ctx, `
			INSERT INTO batches (id, customer_id, tenant_id, requested_by, total_jobs, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			batch.ID, batch.CustomerID, batch.TenantID, batch.RequestedBy,
			batch.TotalJobs, batch.Status, batch.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}

		for _, job := range jobs {
			_, err := ts.q.ExecContext(ctx, `
				INSERT INTO jobs (id, batch_id, tracking_id, attempts, max_attempts, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				job.ID, job.BatchID, job.TrackingID, job.Attempts,
				job.MaxAttempts, job.Status, job.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
			}
		}
		return nil
	})
}

// Health checks if the database is healthy.
func (s *Store) Health(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
