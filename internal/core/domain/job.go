package domain

import "time"

type JobStatus string

const (
	// JobStatusProcessing is the initial state. Credit reservation has
	// already succeeded before the row exists, so there is no persisted
	// "pending" state.
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	// JobStatusFailed is transient: compensation advances it to refunded.
	JobStatusFailed    JobStatus = "failed"
	JobStatusRefunded  JobStatus = "refunded"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are expected from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusRefunded || s == JobStatusCancelled
}

type JobKind string

const (
	JobKindGenerate JobKind = "generate"
	JobKindModify   JobKind = "modify"
)

// Job is one unit of metered background work. CreditsCost is captured
// at admission and immutable thereafter, so later tier or price changes
// cannot change an in-flight job's refund value. Rows are never deleted.
type Job struct {
	ID           string
	AccountID    string
	Kind         JobKind
	Tier         Tier
	CreditsCost  int64
	Status       JobStatus
	Prompt       string
	InputRef     string
	OutputRef    string
	Width        int
	Height       int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}
