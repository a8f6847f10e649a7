package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/repository"
)

var _ repository.JobLinkRepository = (*JobLinkRepo)(nil)

type JobLinkRepo struct {
	pool *pgxpool.Pool
}

func NewJobLinkRepo(pool *pgxpool.Pool) *JobLinkRepo {
	return &JobLinkRepo{pool: pool}
}

// Create is create-if-absent. Re-creating the same job->session pair is a
// no-op; the same job id pointing at a different session is ErrAlreadyExists.
func (r *JobLinkRepo) Create(ctx context.Context, qx repository.Tx, link *model.JobLink) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	const q = `
INSERT INTO job_links (job_id, session_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (job_id) DO NOTHING;`
	tag, err := ex.Exec(ctx, q, link.JobID, link.SessionID, link.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	existing, err := r.Resolve(ctx, qx, link.JobID)
	if err != nil {
		return err
	}
	if existing != link.SessionID {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *JobLinkRepo) Resolve(ctx context.Context, qx repository.Tx, jobID string) (string, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return "", err
	}
	const q = `SELECT session_id FROM job_links WHERE job_id = $1;`
	var sessionID string
	if err := ex.QueryRow(ctx, q, jobID).Scan(&sessionID); err != nil {
		if err == pgx.ErrNoRows {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return sessionID, nil
}
