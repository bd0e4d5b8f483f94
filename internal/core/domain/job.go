package domain

import "time"

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRetrying   JobStatus = "retrying"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one unit of sync work for a single tracking configuration.
// It belongs to exactly one batch for its lifetime.
type Job struct {
	ID          string     `db:"id"           json:"id"`
	BatchID     string     `db:"batch_id"     json:"batch_id"`
	TrackingID  string     `db:"tracking_id"  json:"tracking_id"`
	Attempts    int        `db:"attempts"     json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	Status      JobStatus  `db:"status"       json:"status"`
	LastError   string     `db:"last_error"   json:"last_error,omitempty"`
	ErrorCode   ErrorClass `db:"error_code"   json:"error_code,omitempty"`
	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	StartedAt   *time.Time `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"    json:"created_at"`
}
