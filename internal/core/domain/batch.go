package domain

import "time"

// BatchStatus is the lifecycle state of a batch.
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusPaused     BatchStatus = "paused"
	BatchStatusCompleted  BatchStatus = "completed"
)

// Batch groups the jobs created together from one bulk request.
// The CompletedJobs/FailedJobs counters are advisory while the batch is
// running; finalization recomputes them from actual job statuses.
type Batch struct {
	ID            string      `db:"id"             json:"id"`
	CustomerID    string      `db:"customer_id"    json:"customer_id"`
	TenantID      string      `db:"tenant_id"      json:"tenant_id"`
	RequestedBy   string      `db:"requested_by"   json:"requested_by"`
	TotalJobs     int         `db:"total_jobs"     json:"total_jobs"`
	CompletedJobs int         `db:"completed_jobs" json:"completed_jobs"`
	FailedJobs    int         `db:"failed_jobs"    json:"failed_jobs"`
	Status        BatchStatus `db:"status"         json:"status"`
	PausedAt      *time.Time  `db:"paused_at"      json:"paused_at,omitempty"`
	ResumeAfter   *time.Time  `db:"resume_after"   json:"resume_after,omitempty"`
	PauseReason   string      `db:"pause_reason"   json:"pause_reason,omitempty"`
	CreatedAt     time.Time   `db:"created_at"     json:"created_at"`
}
