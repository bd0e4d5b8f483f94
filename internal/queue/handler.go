package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/fault"
	"github.com/OneClickTag/tracksync/internal/infra/broadcast"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
	"github.com/OneClickTag/tracksync/internal/metrics"
)

// retryDelays is the fixed backoff table indexed by attempt count; attempts
// past the table reuse the last entry.
var retryDelays = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
}

func retryDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryDelays) {
		idx = len(retryDelays) - 1
	}
	return retryDelays[idx]
}

// DefaultPauseDivisor converts a batch's historical quota-hit count into a
// rough consecutive-pause count. Heuristic, not load-bearing.
const DefaultPauseDivisor = 2

// ErrorHandler applies the failure classification to a job: quota pauses the
// whole batch, retryable schedules a backoff, everything else fails the job
// terminally. Each branch is one atomic state update; the progress broadcast
// is best-effort and happens after the commit.
type ErrorHandler struct {
	store        storage.Store
	events       broadcast.Broadcaster
	log          *slog.Logger
	pauseDivisor int
	now          func() time.Time
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(store storage.Store, events broadcast.Broadcaster, log *slog.Logger) *ErrorHandler {
	return &ErrorHandler{
		store:        store,
		events:       events,
		log:          log,
		pauseDivisor: DefaultPauseDivisor,
		now:          time.Now,
	}
}

// SetPauseDivisor overrides the quota-hit to pause-count divisor.
func (h *ErrorHandler) SetPauseDivisor(divisor int) {
	if divisor > 0 {
		h.pauseDivisor = divisor
	}
}

// Handle records the failure of a processing job.
func (h *ErrorHandler) Handle(ctx context.Context, job *domain.Job, cause error) error {
	class := fault.ClassifyError(cause)
	msg := cause.Error()

	switch {
	case class == domain.ErrorClassQuota:
		return h.pauseBatch(ctx, job, msg)
	case class == domain.ErrorClassRetryable && job.Attempts < job.MaxAttempts:
		return h.scheduleRetry(ctx, job, msg)
	default:
		return h.failJob(ctx, job, msg, class)
	}
}

// FailExhausted terminates a job whose executing context died with the
// retry budget already spent. Requeueing it would charge another attempt and
// push the counter past the maximum, so the only legal transition left is
// the terminal one.
func (h *ErrorHandler) FailExhausted(ctx context.Context, job *domain.Job) error {
	msg := fmt.Sprintf("processing stalled with no retries left (%d/%d attempts)", job.Attempts, job.MaxAttempts)
	return h.failJob(ctx, job, msg, domain.ErrorClassRetryable)
}

// pauseBatch requeues the job without charging its attempt and pauses the
// batch until the computed cooldown elapses. A quota rejection is the remote
// API's backpressure, not the job's fault.
func (h *ErrorHandler) pauseBatch(ctx context.Context, job *domain.Job, msg string) error {
	quotaHits, err := h.store.Jobs().CountByErrorCode(ctx, job.BatchID, domain.ErrorClassQuota)
	if err != nil {
		return fmt.Errorf("count quota hits: %w", err)
	}
	consecutivePauses := quotaHits / h.pauseDivisor

	now := h.now()
	cooldown := fault.Cooldown(msg, consecutivePauses)
	resumeAfter := now.Add(cooldown)
	reason := fmt.Sprintf("quota exceeded - resuming at %s", resumeAfter.Format(time.RFC3339))

	err = h.store.WithinTx(ctx, func(s storage.Store) error {
		if err := s.Jobs().RequeueForQuota(ctx, job.ID, msg); err != nil {
			return fmt.Errorf("requeue job: %w", err)
		}
		if err := s.Batches().Pause(ctx, job.BatchID, reason, now, resumeAfter); err != nil {
			return fmt.Errorf("pause batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply quota pause: %w", err)
	}

	metrics.JobsProcessed.WithLabelValues("quota").Inc()
	metrics.BatchesPaused.Inc()
	metrics.QuotaCooldownSeconds.Observe(cooldown.Seconds())

	h.log.Warn("batch paused for quota cooldown",
		"batch_id", job.BatchID, "job_id", job.ID,
		"cooldown", cooldown, "resume_after", resumeAfter)

	h.events.Publish(ctx, domain.ProgressEvent{
		EventType: domain.EventTypeBatchPaused,
		BatchID:   job.BatchID,
		JobID:     job.ID,
		EmittedAt: now,
		Metadata: map[string]any{
			"reason":       reason,
			"resume_after": resumeAfter,
		},
	})
	return nil
}

func (h *ErrorHandler) scheduleRetry(ctx context.Context, job *domain.Job, msg string) error {
	now := h.now()
	delay := retryDelay(job.Attempts)
	nextRetryAt := now.Add(delay)

	if err := h.store.Jobs().MarkRetrying(ctx, job.ID, msg, domain.ErrorClassRetryable, nextRetryAt); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	metrics.JobRetriesScheduled.Inc()

	h.log.Info("job scheduled for retry",
		"job_id", job.ID, "attempt", job.Attempts,
		"max_attempts", job.MaxAttempts, "next_retry_at", nextRetryAt)

	h.events.Publish(ctx, domain.ProgressEvent{
		EventType:  domain.EventTypeJobRetrying,
		BatchID:    job.BatchID,
		JobID:      job.ID,
		TrackingID: job.TrackingID,
		EmittedAt:  now,
		Metadata: map[string]any{
			"attempt":       job.Attempts,
			"next_retry_at": nextRetryAt,
		},
	})
	return nil
}

// failJob applies the terminal failure transition: job, tracking and
// recommendation failed plus the batch's failed counter, in one transaction.
func (h *ErrorHandler) failJob(ctx context.Context, job *domain.Job, msg string, class domain.ErrorClass) error {
	now := h.now()
	err := h.store.WithinTx(ctx, func(s storage.Store) error {
		if err := s.Jobs().MarkFailed(ctx, job.ID, msg, class, now); err != nil {
			return fmt.Errorf("mark job failed: %w", err)
		}
		if err := s.Trackings().MarkFailed(ctx, job.TrackingID, msg); err != nil {
			return fmt.Errorf("mark tracking failed: %w", err)
		}
		if err := s.Recommendations().MarkFailed(ctx, job.TrackingID); err != nil {
			return fmt.Errorf("mark recommendation failed: %w", err)
		}
		if err := s.Batches().IncrementFailed(ctx, job.BatchID); err != nil {
			return fmt.Errorf("debit batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply job failure: %w", err)
	}

	metrics.JobsProcessed.WithLabelValues("failed").Inc()

	h.log.Error("job failed terminally",
		"job_id", job.ID, "batch_id", job.BatchID,
		"class", class, "attempts", job.Attempts, "error", msg)

	h.events.Publish(ctx, domain.ProgressEvent{
		EventType:  domain.EventTypeJobFailed,
		BatchID:    job.BatchID,
		JobID:      job.ID,
		TrackingID: job.TrackingID,
		EmittedAt:  now,
		Metadata: map[string]any{
			"error": msg,
			"class": string(class),
		},
	})
	return nil
}
