package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/OneClickTag/tracksync/internal/core/domain"
)

// DefaultMaxAttempts is the per-job retry budget. Quota rejections are not
// charged against it.
const DefaultMaxAttempts = 4

// NewBatch builds a batch and one job per tracking, ready for atomic
// insertion via Store.CreateBatch. Job creation order defines dispatch order.
func NewBatch(customerID, tenantID, requestedBy string, trackingIDs []string, now time.Time) (*domain.Batch, []*domain.Job) {
	return NewBatchWithBudget(customerID, tenantID, requestedBy, trackingIDs, DefaultMaxAttempts, now)
}

// NewBatchWithBudget is NewBatch with an explicit per-job attempt budget.
func NewBatchWithBudget(customerID, tenantID, requestedBy string, trackingIDs []string, maxAttempts int, now time.Time) (*domain.Batch, []*domain.Job) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	batch := &domain.Batch{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		TenantID:    tenantID,
		RequestedBy: requestedBy,
		TotalJobs:   len(trackingIDs),
		Status:      domain.BatchStatusProcessing,
		CreatedAt:   now,
	}

	jobs := make([]*domain.Job, 0, len(trackingIDs))
	for i, trackingID := range trackingIDs {
		jobs = append(jobs, &domain.Job{
			ID:          uuid.New().String(),
			BatchID:     batch.ID,
			TrackingID:  trackingID,
			MaxAttempts: maxAttempts,
			Status:      domain.JobStatusQueued,
			// Nudge created_at so FIFO order is stable even when the clock
			// granularity collapses the timestamps.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	return batch, jobs
}
