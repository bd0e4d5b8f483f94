package storage

import (
	"context"
	"errors"
	"time"

	"github.com/OneClickTag/tracksync/internal/core/domain"
)

var (
	// ErrNotFound is returned when a record doesn't exist
	ErrNotFound = errors.New("record not found")
)

// JobRepository handles job queue storage operations. Every mutation that
// establishes exclusivity (claiming, completing, failing) is a conditional
// update guarded on the job's prior status, so overlapping scheduler ticks
// cannot double-apply a transition.
type JobRepository interface {
	// GetByID retrieves a job by id
	GetByID(ctx context.Context, id string) (*domain.Job, error)

	// ListByBatch retrieves all jobs of a batch in creation order
	ListByBatch(ctx context.Context, batchID string) ([]*domain.Job, error)

	// ClaimNext atomically claims the batch's next runnable job: the oldest
	// job that is queued (and not scheduled for later), or retrying with an
	// elapsed next_retry_at. The claim marks the job processing, stamps the
	// start time and increments the attempt counter in one statement. It
	// refuses to claim while another job of the batch is processing.
	// Returns nil when there is nothing to claim.
	ClaimNext(ctx context.Context, batchID string, now time.Time) (*domain.Job, error)

	// ListStuckExhausted retrieves jobs that have been processing longer
	// than the threshold and have no retry budget left. These cannot be
	// requeued; the caller routes them to the terminal failure transition.
	ListStuckExhausted(ctx context.Context, olderThan time.Time) ([]*domain.Job, error)

	// ResetStuck requeues jobs that have been processing longer than the
	// threshold and still have retry budget, clearing their start fields.
	// Returns the number reset. The attempt charged by the dead claim is
	// kept, so a job that keeps stalling runs out of budget instead of
	// looping forever.
	ResetStuck(ctx context.Context, olderThan time.Time) (int64, error)

	// MarkCompleted transitions a processing job to completed
	MarkCompleted(ctx context.Context, id string, at time.Time) error

	// MarkRetrying transitions a processing job to retrying with a scheduled
	// retry time, recording the error and its classification
	MarkRetrying(ctx context.Context, id, errMsg string, code domain.ErrorClass, nextRetryAt time.Time) error

	// MarkFailed transitions a processing job to failed terminally
	MarkFailed(ctx context.Context, id, errMsg string, code domain.ErrorClass, at time.Time) error

	// RequeueForQuota returns a processing job to queued after a quota
	// rejection, decrementing the attempt counter so the rejection is not
	// charged against the retry budget
	RequeueForQuota(ctx context.Context, id, errMsg string) error

	// CountByStatus returns job counts per status for a batch
	CountByStatus(ctx context.Context, batchID string) (map[domain.JobStatus]int, error)

	// CountByErrorCode returns the number of the batch's jobs whose last
	// recorded error carries the given classification
	CountByErrorCode(ctx context.Context, batchID string, code domain.ErrorClass) (int, error)
}

// BatchRepository handles batch storage operations
type BatchRepository interface {
	// GetByID retrieves a batch by id
	GetByID(ctx context.Context, id string) (*domain.Batch, error)

	// ListByStatus retrieves batches in the given status, oldest first
	ListByStatus(ctx context.Context, status domain.BatchStatus) ([]*domain.Batch, error)

	// Lock acquires the batch's dispatch lock for the duration of the
	// surrounding transaction, serializing claims against the batch across
	// replicas. Must be called inside WithinTx, before ClaimNext.
	Lock(ctx context.Context, id string) error

	// Pause transitions a processing batch to paused with a resume deadline
	// and a human-readable reason
	Pause(ctx context.Context, id, reason string, pausedAt, resumeAfter time.Time) error

	// ResumeDue returns every paused batch whose resume deadline has elapsed
	// to processing, clearing the pause fields. Returns the number resumed.
	ResumeDue(ctx context.Context, now time.Time) (int64, error)

	// IncrementCompleted bumps the advisory completed counter
	IncrementCompleted(ctx context.Context, id string) error

	// IncrementFailed bumps the advisory failed counter
	IncrementFailed(ctx context.Context, id string) error

	// Finalize transitions a processing batch to completed, overwriting the
	// advisory counters with totals recomputed from actual job statuses.
	// Returns false when the batch was not in processing (already finalized).
	Finalize(ctx context.Context, id string, completed, failed int) (bool, error)
}

// TrackingRepository handles the domain entity mutated as a side effect of
// sync execution
type TrackingRepository interface {
	// GetByID retrieves a tracking by id
	GetByID(ctx context.Context, id string) (*domain.Tracking, error)

	// SetAdsArtifacts records the ad-platform conversion action and label
	SetAdsArtifacts(ctx context.Context, id, conversionActionID, conversionLabel string) error

	// SetTagManagerArtifacts records the tag-manager workspace, trigger and
	// tag identifiers
	SetTagManagerArtifacts(ctx context.Context, id, workspaceID, triggerID, tagID, adsTagID string) error

	// MarkActive marks the tracking active after a verified sync
	MarkActive(ctx context.Context, id string) error

	// MarkFailed marks the tracking failed with the error message
	MarkFailed(ctx context.Context, id, errMsg string) error
}

// RecommendationRepository handles the recommendation a tracking was created
// from
type RecommendationRepository interface {
	// MarkCreated marks the tracking's recommendation as created
	MarkCreated(ctx context.Context, trackingID string) error

	// MarkFailed marks the tracking's recommendation as failed
	MarkFailed(ctx context.Context, trackingID string) error
}

// Store bundles the repositories over one backing database.
type Store interface {
	Jobs() JobRepository
	Batches() BatchRepository
	Trackings() TrackingRepository
	Recommendations() RecommendationRepository

	// CreateBatch persists a batch and its jobs atomically
	CreateBatch(ctx context.Context, batch *domain.Batch, jobs []*domain.Job) error

	// WithinTx runs fn against a Store whose mutations commit or roll back
	// as one unit
	WithinTx(ctx context.Context, fn func(Store) error) error

	// Health checks whether the store is reachable
	Health(ctx context.Context) error
}
