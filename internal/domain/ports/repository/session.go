package repository

import (
	"context"
	"time"

	"virtual-tryon-service/internal/domain/model"
)

// SessionPatch carries the fields a conditional update may change. Nil
// pointers leave the column untouched; UpdatedAt and Version are always
// written by the implementation.
type SessionPatch struct {
	Status       *model.SessionStatus
	JobID        *string
	ResultURL    *string
	ErrorKind    *string
	ErrorMessage *string
}

// SessionRepository is the only persistence contract the orchestration core
// requires. ConditionalUpdate is the compare-and-set primitive every status
// transition goes through: the write applies only while the session still has
// expectedStatus and expectedVersion, and a false return means the
// precondition no longer holds; callers must treat that as ignored/conflict,
// never retry-with-overwrite.
type SessionRepository interface {
	Create(ctx context.Context, qx Tx, s *model.TryOnSession) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.TryOnSession, error)
	ConditionalUpdate(ctx context.Context, qx Tx, id string, expectedStatus model.SessionStatus, expectedVersion int64, patch SessionPatch) (bool, error)

	// ListStaleProcessing returns processing sessions whose updated_at is
	// older than the cutoff, oldest first, for the fallback poller.
	ListStaleProcessing(ctx context.Context, qx Tx, olderThan time.Time, limit int) ([]*model.TryOnSession, error)
}
