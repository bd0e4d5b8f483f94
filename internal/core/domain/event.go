package domain

import "time"

// EventType identifies a progress event broadcast to the real-time channel.
type EventType string

const (
	EventTypeJobProcessing  EventType = "job_processing"
	EventTypeJobCompleted   EventType = "job_completed"
	EventTypeJobRetrying    EventType = "job_retrying"
	EventTypeJobFailed      EventType = "job_failed"
	EventTypeBatchPaused    EventType = "batch_paused"
	EventTypeBatchCompleted EventType = "batch_completed"
)

// ProgressEvent is the payload published for batch progress updates. Delivery
// is best-effort and never on the consistency-critical path.
type ProgressEvent struct {
	EventType  EventType      `json:"event_type"`
	BatchID    string         `json:"batch_id"`
	JobID      string         `json:"job_id,omitempty"`
	TrackingID string         `json:"tracking_id,omitempty"`
	EmittedAt  time.Time      `json:"emitted_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
