package jobs

import "errors"

// Sentinel errors.
var (
	// ErrNotFound is returned when a job doesn't exist.
	ErrNotFound = errors.New("jobs: job not found")

	// ErrTooManyConcurrentJobs is returned when an account is at its
	// processing-job cap. No credits are debited in that case.
	ErrTooManyConcurrentJobs = errors.New("jobs: too many concurrent jobs")

	// ErrInvalidState is returned for a transition the state machine
	// does not allow, e.g. cancelling a completed job.
	ErrInvalidState = errors.New("jobs: invalid job state for operation")
)
