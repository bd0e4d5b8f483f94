package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/broadcast"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
	"github.com/OneClickTag/tracksync/internal/metrics"
)

// DefaultStuckThreshold is how long a job may sit in processing before the
// executing context is presumed dead. Kept short because individual sync
// steps complete in low single-digit seconds.
const DefaultStuckThreshold = 60 * time.Second

// Driver runs one scheduler tick: recover stuck jobs, resume paused batches,
// dispatch the next job of every runnable batch, finalize drained batches.
// It is stateless between ticks; all coordination lives in the store, so
// overlapping ticks are safe.
type Driver struct {
	store          storage.Store
	processor      *Processor
	handler        *ErrorHandler
	events         broadcast.Broadcaster
	log            *slog.Logger
	stuckThreshold time.Duration
	now            func() time.Time
}

// NewDriver creates a new batch lifecycle driver.
func NewDriver(
	store storage.Store,
	processor *Processor,
	handler *ErrorHandler,
	events broadcast.Broadcaster,
	log *slog.Logger,
) *Driver {
	return &Driver{
		store:          store,
		processor:      processor,
		handler:        handler,
		events:         events,
		log:            log,
		stuckThreshold: DefaultStuckThreshold,
		now:            time.Now,
	}
}

// SetStuckThreshold overrides the stuck-job recovery threshold.
func (d *Driver) SetStuckThreshold(threshold time.Duration) {
	d.stuckThreshold = threshold
}

// Tick executes the four driver steps in their fixed order. Step failures
// are collected rather than aborting the tick; a broken finalize must not
// prevent dispatch on the next invocation.
func (d *Driver) Tick(ctx context.Context) error {
	var errs []error

	if err := d.recoverStuck(ctx); err != nil {
		d.log.Error("stuck job recovery failed", "error", err)
		errs = append(errs, err)
	}
	if err := d.resumePaused(ctx); err != nil {
		d.log.Error("batch resumption failed", "error", err)
		errs = append(errs, err)
	}
	if err := d.dispatch(ctx); err != nil {
		d.log.Error("dispatch failed", "error", err)
		errs = append(errs, err)
	}
	if err := d.finalize(ctx); err != nil {
		d.log.Error("finalization failed", "error", err)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// recoverStuck reclaims jobs whose executing context died mid-flight. Jobs
// with budget left are requeued and re-run from the top, which is why the
// sync executors must locate-before-create; jobs whose dead claim consumed
// the last attempt are failed terminally so the batch can still finalize.
func (d *Driver) recoverStuck(ctx context.Context) error {
	cutoff := d.now().Add(-d.stuckThreshold)

	exhausted, err := d.store.Jobs().ListStuckExhausted(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list exhausted stuck jobs: %w", err)
	}
	for _, job := range exhausted {
		if err := d.handler.FailExhausted(ctx, job); err != nil {
			d.log.Error("failed to terminate exhausted stuck job",
				"job_id", job.ID, "batch_id", job.BatchID, "error", err)
			continue
		}
		d.log.Warn("stuck job out of retries, failed terminally",
			"job_id", job.ID, "batch_id", job.BatchID,
			"attempts", job.Attempts, "max_attempts", job.MaxAttempts)
	}

	n, err := d.store.Jobs().ResetStuck(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reset stuck jobs: %w", err)
	}
	if n > 0 {
		metrics.StuckJobsRecovered.Add(float64(n))
		d.log.Warn("recovered stuck jobs", "count", n, "threshold", d.stuckThreshold)
	}
	return nil
}

// resumePaused returns batches whose cooldown elapsed to processing. The
// quota-rejected jobs were already requeued when the batch paused, so no job
// state changes here.
func (d *Driver) resumePaused(ctx context.Context) error {
	n, err := d.store.Batches().ResumeDue(ctx, d.now())
	if err != nil {
		return fmt.Errorf("resume due batches: %w", err)
	}
	if n > 0 {
		d.log.Info("resumed paused batches", "count", n)
	}
	return nil
}

// dispatch claims and processes at most one job per processing batch.
// Batches belong to distinct customers and run concurrently; within a batch
// the claim runs under the batch lock, so concurrent ticks (including other
// replicas) cannot put two jobs of one batch in flight.
func (d *Driver) dispatch(ctx context.Context) error {
	batches, err := d.store.Batches().ListByStatus(ctx, domain.BatchStatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing batches: %w", err)
	}

	var wg sync.WaitGroup
	for _, batch := range batches {
		wg.Add(1)
		go func(batch *domain.Batch) {
			defer wg.Done()

			job, err := d.claim(ctx, batch.ID)
			if err != nil {
				d.log.Error("failed to claim job", "batch_id", batch.ID, "error", err)
				return
			}
			if job == nil {
				return
			}

			if err := d.processor.Process(ctx, job); err != nil {
				d.log.Error("job processing failed",
					"batch_id", batch.ID, "job_id", job.ID, "error", err)
			}
		}(batch)
	}
	wg.Wait()
	return nil
}

// claim takes the batch lock and claims its next runnable job in one
// transaction. The claim commits before processing starts; only the
// serialization against concurrent claimers needs the transaction.
func (d *Driver) claim(ctx context.Context, batchID string) (*domain.Job, error) {
	var job *domain.Job
	err := d.store.WithinTx(ctx, func(s storage.Store) error {
		if err := s.Batches().Lock(ctx, batchID); err != nil {
			return fmt.Errorf("lock batch: %w", err)
		}
		claimed, err := s.Jobs().ClaimNext(ctx, batchID, d.now())
		if err != nil {
			return err
		}
		job = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// finalize completes batches with no remaining active jobs. The terminal
// counts are recomputed from actual job statuses; the advisory running
// counters are never trusted.
func (d *Driver) finalize(ctx context.Context) error {
	batches, err := d.store.Batches().ListByStatus(ctx, domain.BatchStatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing batches: %w", err)
	}

	for _, batch := range batches {
		counts, err := d.store.Jobs().CountByStatus(ctx, batch.ID)
		if err != nil {
			d.log.Error("failed to count jobs", "batch_id", batch.ID, "error", err)
			continue
		}

		active := counts[domain.JobStatusQueued] +
			counts[domain.JobStatusProcessing] +
			counts[domain.JobStatusRetrying]
		if active > 0 {
			continue
		}

		completed := counts[domain.JobStatusCompleted]
		failed := counts[domain.JobStatusFailed]

		finalized, err := d.store.Batches().Finalize(ctx, batch.ID, completed, failed)
		if err != nil {
			d.log.Error("failed to finalize batch", "batch_id", batch.ID, "error", err)
			continue
		}
		if !finalized {
			continue // a concurrent tick won the transition
		}

		metrics.BatchesFinalized.Inc()
		d.log.Info("batch completed",
			"batch_id", batch.ID, "completed", completed, "failed", failed)

		d.events.Publish(ctx, domain.ProgressEvent{
			EventType: domain.EventTypeBatchCompleted,
			BatchID:   batch.ID,
			EmittedAt: d.now(),
			Metadata: map[string]any{
				"completed": completed,
				"failed":    failed,
			},
		})
	}
	return nil
}
