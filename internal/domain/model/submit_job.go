package model

import "time"

type SubmitJobStatus string

const (
	SubmitJobStatusPending    SubmitJobStatus = "pending"
	SubmitJobStatusProcessing SubmitJobStatus = "processing"
	SubmitJobStatusDone       SubmitJobStatus = "done"
	SubmitJobStatusDead       SubmitJobStatus = "dead"
)

// SubmitJob is a durable queue record for one provider submission. Delivery
// is at-least-once; the worker guards against duplicates by re-reading the
// session before submitting.
type SubmitJob struct {
	ID            string
	SessionID     string
	Status        SubmitJobStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
