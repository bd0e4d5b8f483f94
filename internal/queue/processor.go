package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/broadcast"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
	"github.com/OneClickTag/tracksync/internal/metrics"
	"github.com/OneClickTag/tracksync/internal/syncexec"
)

// Processor drives the sync executors for one claimed job, verifies the
// outcome against persisted state and records success. Failures are handed
// to the ErrorHandler exactly once; no other layer interprets error text.
type Processor struct {
	store   storage.Store
	ads     syncexec.Executor
	tags    syncexec.Executor
	events  broadcast.Broadcaster
	handler *ErrorHandler
	log     *slog.Logger
	now     func() time.Time
}

// NewProcessor creates a new job processor.
func NewProcessor(
	store storage.Store,
	ads syncexec.Executor,
	tags syncexec.Executor,
	events broadcast.Broadcaster,
	handler *ErrorHandler,
	log *slog.Logger,
) *Processor {
	return &Processor{
		store:   store,
		ads:     ads,
		tags:    tags,
		events:  events,
		handler: handler,
		log:     log,
		now:     time.Now,
	}
}

// Process executes one claimed job end to end. The job must already be in
// processing (claimed by the dispatcher).
func (p *Processor) Process(ctx context.Context, job *domain.Job) error {
	log := p.log.With("job_id", job.ID, "batch_id", job.BatchID, "tracking_id", job.TrackingID)

	p.events.Publish(ctx, domain.ProgressEvent{
		EventType:  domain.EventTypeJobProcessing,
		BatchID:    job.BatchID,
		JobID:      job.ID,
		TrackingID: job.TrackingID,
		EmittedAt:  p.now(),
		Metadata:   map[string]any{"attempt": job.Attempts},
	})

	if err := p.run(ctx, job); err != nil {
		log.Warn("job sync failed", "attempt", job.Attempts, "error", err)
		return p.handler.Handle(ctx, job, err)
	}

	if err := p.recordSuccess(ctx, job); err != nil {
		return err
	}

	metrics.JobsProcessed.WithLabelValues("completed").Inc()
	log.Info("job completed", "attempt", job.Attempts)
	return nil
}

// run performs the ordered sync: ads first (it produces the conversion label
// the tag-manager sync consumes), then tag manager, then verification against
// the re-read persisted state.
func (p *Processor) run(ctx context.Context, job *domain.Job) error {
	tracking, err := p.store.Trackings().GetByID(ctx, job.TrackingID)
	if err != nil {
		return fmt.Errorf("load tracking: %w", err)
	}

	start := p.now()
	if err := p.ads.Execute(ctx, tracking); err != nil {
		return err
	}
	metrics.SyncDuration.WithLabelValues(string(domain.DestinationAds)).Observe(p.now().Sub(start).Seconds())

	start = p.now()
	if err := p.tags.Execute(ctx, tracking); err != nil {
		return err
	}
	metrics.SyncDuration.WithLabelValues(string(domain.DestinationTagManager)).Observe(p.now().Sub(start).Seconds())

	// Verify from storage, not from the in-memory copy: a partially applied
	// write must not be declared complete.
	fresh, err := p.store.Trackings().GetByID(ctx, job.TrackingID)
	if err != nil {
		return fmt.Errorf("reload tracking for verification: %w", err)
	}
	if missing := fresh.MissingArtifacts(); len(missing) > 0 {
		return fmt.Errorf("sync incomplete - missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// recordSuccess applies the terminal success transition as one transaction:
// job completed, tracking active, recommendation created, batch counter
// credited. The broadcast stays outside the transaction.
func (p *Processor) recordSuccess(ctx context.Context, job *domain.Job) error {
	completedAt := p.now()
	err := p.store.WithinTx(ctx, func(s storage.Store) error {
		if err := s.Jobs().MarkCompleted(ctx, job.ID, completedAt); err != nil {
			return fmt.Errorf("mark job completed: %w", err)
		}
		if err := s.Trackings().MarkActive(ctx, job.TrackingID); err != nil {
			return fmt.Errorf("mark tracking active: %w", err)
		}
		if err := s.Recommendations().MarkCreated(ctx, job.TrackingID); err != nil {
			return fmt.Errorf("mark recommendation created: %w", err)
		}
		if err := s.Batches().IncrementCompleted(ctx, job.BatchID); err != nil {
			return fmt.Errorf("credit batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record job success: %w", err)
	}

	p.events.Publish(ctx, domain.ProgressEvent{
		EventType:  domain.EventTypeJobCompleted,
		BatchID:    job.BatchID,
		JobID:      job.ID,
		TrackingID: job.TrackingID,
		EmittedAt:  completedAt,
	})
	return nil
}
