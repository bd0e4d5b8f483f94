package domain

// ErrorClass is the persisted classification of a job failure.
type ErrorClass string

const (
	// ErrorClassQuota marks failures caused by the remote API's rate
	// limiting. Not the job's fault; triggers batch-level backpressure.
	ErrorClassQuota ErrorClass = "quota"

	// ErrorClassRetryable marks transient infrastructure faults handled
	// with job-level backoff.
	ErrorClassRetryable ErrorClass = "retryable"

	// ErrorClassPermanent marks logic/data faults that retries cannot fix.
	ErrorClassPermanent ErrorClass = "permanent"
)
