package repository

import (
	"context"
	"time"

	"virtual-tryon-service/internal/domain/model"
)

// SubmitQueueRepository is the durable at-least-once submission queue.
type SubmitQueueRepository interface {
	Enqueue(ctx context.Context, qx Tx, job *model.SubmitJob) error

	// FetchAndMarkProcessing atomically fetches a due pending job and marks
	// it 'processing' so other workers cannot pick it up.
	FetchAndMarkProcessing(ctx context.Context) (*model.SubmitJob, error)

	MarkDone(ctx context.Context, qx Tx, id string) error
	MarkDead(ctx context.Context, qx Tx, id string, lastError string) error

	// Reschedule returns a failed attempt to 'pending' with a new due time.
	Reschedule(ctx context.Context, qx Tx, id string, attempts int, lastError string, nextAttemptAt time.Time) error

	// RequeueStuck returns 'processing' rows untouched since olderThan to
	// 'pending'. The processing mark is a lease, not a commitment: a worker
	// that dies mid-submission leaves its row behind, and without this sweep
	// the row (and its still-queued session) would never be picked up again.
	RequeueStuck(ctx context.Context, qx Tx, olderThan time.Time) (int, error)
}
