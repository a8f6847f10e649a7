package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/repository"
)

var _ repository.SubmitQueueRepository = (*SubmitQueueRepo)(nil)

type SubmitQueueRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewSubmitQueueRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *SubmitQueueRepo {
	return &SubmitQueueRepo{pool: pool, tm: tm}
}

func (r *SubmitQueueRepo) Enqueue(ctx context.Context, qx repository.Tx, job *model.SubmitJob) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = now
	}
	if job.Status == "" {
		job.Status = model.SubmitJobStatusPending
	}
	job.UpdatedAt = now

	const q = `
INSERT INTO submit_jobs (id, session_id, status, attempts, last_error, next_attempt_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err = ex.Exec(ctx, q,
		job.ID, job.SessionID, job.Status, job.Attempts, job.LastError, job.NextAttemptAt, job.CreatedAt, job.UpdatedAt)
	return err
}

// FetchAndMarkProcessing atomically fetches the oldest due pending job and
// marks it 'processing'. SKIP LOCKED keeps concurrent workers off the same row.
func (r *SubmitQueueRepo) FetchAndMarkProcessing(ctx context.Context) (*model.SubmitJob, error) {
	var job *model.SubmitJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ex, err := getExecutor(r.pool, tx)
		if err != nil {
			return err
		}
		const fetchQuery = `
SELECT id, session_id, status, attempts, last_error, next_attempt_at, created_at, updated_at
  FROM submit_jobs
 WHERE status = 'pending' AND next_attempt_at <= now()
 ORDER BY next_attempt_at
 LIMIT 1
 FOR UPDATE SKIP LOCKED;`

		var fetched model.SubmitJob
		var statusStr string
		err = ex.QueryRow(ctx, fetchQuery).Scan(
			&fetched.ID, &fetched.SessionID, &statusStr,
			&fetched.Attempts, &fetched.LastError, &fetched.NextAttemptAt,
			&fetched.CreatedAt, &fetched.UpdatedAt,
		)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		fetched.Status = model.SubmitJobStatus(statusStr)

		fetched.Status = model.SubmitJobStatusProcessing
		fetched.UpdatedAt = time.Now()
		const mark = `UPDATE submit_jobs SET status = $2, updated_at = $3 WHERE id = $1;`
		if _, err := ex.Exec(ctx, mark, fetched.ID, fetched.Status, fetched.UpdatedAt); err != nil {
			return err
		}

		job = &fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *SubmitQueueRepo) MarkDone(ctx context.Context, qx repository.Tx, id string) error {
	return r.setStatus(ctx, qx, id, model.SubmitJobStatusDone, "")
}

func (r *SubmitQueueRepo) MarkDead(ctx context.Context, qx repository.Tx, id string, lastError string) error {
	return r.setStatus(ctx, qx, id, model.SubmitJobStatusDead, lastError)
}

func (r *SubmitQueueRepo) Reschedule(ctx context.Context, qx repository.Tx, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
UPDATE submit_jobs
   SET status = 'pending', attempts = $2, last_error = $3, next_attempt_at = $4, updated_at = now()
 WHERE id = $1;`
	_, err = ex.Exec(ctx, q, id, attempts, lastError, nextAttemptAt)
	return err
}

// RequeueStuck is the lease sweep: rows a dead worker left in 'processing'
// go back to 'pending' so another worker can finish them. Attempts are kept,
// so the backoff ceiling still applies across crashes.
func (r *SubmitQueueRepo) RequeueStuck(ctx context.Context, qx repository.Tx, olderThan time.Time) (int, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return 0, err
	}
	const q = `
UPDATE submit_jobs
   SET status = 'pending', next_attempt_at = now(), updated_at = now()
 WHERE status = 'processing' AND updated_at < $1;`
	tag, err := ex.Exec(ctx, q, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *SubmitQueueRepo) setStatus(ctx context.Context, qx repository.Tx, id string, st model.SubmitJobStatus, lastError string) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
UPDATE submit_jobs
   SET status = $2, last_error = COALESCE(NULLIF($3, ''), last_error), updated_at = now()
 WHERE id = $1;`
	_, err = ex.Exec(ctx, q, id, st, lastError)
	return err
}
