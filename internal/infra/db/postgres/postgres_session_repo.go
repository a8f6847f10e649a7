package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, status, job_id, person_image_url, garment_image_url, category,
       result_image_url, error_kind, error_message, version, created_at, updated_at`

func (r *SessionRepo) Create(ctx context.Context, qx repository.Tx, s *model.TryOnSession) error {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO tryon_sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err = ex.Exec(ctx, q,
		s.ID, s.Status, s.JobID, s.PersonImageURL, s.GarmentImageURL, s.Category,
		s.ResultImageURL, s.ErrorKind, s.ErrorMessage, s.Version, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *SessionRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.TryOnSession, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `SELECT ` + sessionColumns + ` FROM tryon_sessions WHERE id = $1;`
	return scanSession(ex.QueryRow(ctx, q, id))
}

// ConditionalUpdate is the compare-and-set write every status transition goes
// through. The update matches only while the session still carries
// expectedStatus and expectedVersion; zero rows affected means the
// precondition no longer holds and the caller must back off.
func (r *SessionRepo) ConditionalUpdate(ctx context.Context, qx repository.Tx, id string, expectedStatus model.SessionStatus, expectedVersion int64, patch repository.SessionPatch) (bool, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return false, err
	}

	set := []string{"version = version + 1", "updated_at = $1"}
	args := []interface{}{time.Now()}
	n := 2
	add := func(col string, v interface{}) {
		set = append(set, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, v)
		n++
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.JobID != nil {
		add("job_id", *patch.JobID)
	}
	if patch.ResultURL != nil {
		add("result_image_url", *patch.ResultURL)
	}
	if patch.ErrorKind != nil {
		add("error_kind", *patch.ErrorKind)
	}
	if patch.ErrorMessage != nil {
		add("error_message", *patch.ErrorMessage)
	}

	q := fmt.Sprintf(`UPDATE tryon_sessions SET %s WHERE id = $%d AND status = $%d AND version = $%d;`,
		strings.Join(set, ", "), n, n+1, n+2)
	args = append(args, id, expectedStatus, expectedVersion)

	tag, err := ex.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepo) ListStaleProcessing(ctx context.Context, qx repository.Tx, olderThan time.Time, limit int) ([]*model.TryOnSession, error) {
	ex, err := getExecutor(r.pool, qx)
	if err != nil {
		return nil, err
	}
	const q = `
SELECT ` + sessionColumns + `
  FROM tryon_sessions
 WHERE status = 'processing' AND updated_at < $1
 ORDER BY updated_at
 LIMIT $2;`
	rows, err := ex.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.TryOnSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*model.TryOnSession, error) {
	var s model.TryOnSession
	var statusStr string
	err := row.Scan(&s.ID, &statusStr, &s.JobID, &s.PersonImageURL, &s.GarmentImageURL, &s.Category,
		&s.ResultImageURL, &s.ErrorKind, &s.ErrorMessage, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SessionStatus(statusStr)
	return &s, nil
}
