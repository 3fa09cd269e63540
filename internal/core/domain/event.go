package domain

import "time"

type JobEventType string

const (
	JobEventAdmitted  JobEventType = "job.admitted"
	JobEventCompleted JobEventType = "job.completed"
	JobEventFailed    JobEventType = "job.failed"
	JobEventRefunded  JobEventType = "job.refunded"
	JobEventCancelled JobEventType = "job.cancelled"
)

// JobEvent is published to downstream consumers on every job
// lifecycle transition.
type JobEvent struct {
	Type        JobEventType
	JobID       string
	AccountID   string
	Kind        JobKind
	CreditsCost int64
	ErrorCode   string
	Timestamp   time.Time
}
