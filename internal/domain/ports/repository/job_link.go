package repository

import (
	"context"

	"virtual-tryon-service/internal/domain/model"
)

// JobLinkRepository stores the provider-jobID -> sessionID mapping.
// Create is create-if-absent: a second create for the same job id is a no-op
// when it carries the same session and ErrAlreadyExists otherwise.
type JobLinkRepository interface {
	Create(ctx context.Context, qx Tx, link *model.JobLink) error
	Resolve(ctx context.Context, qx Tx, jobID string) (sessionID string, err error)
}
