package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/adapter"
	"virtual-tryon-service/internal/domain/ports/repository"
	"virtual-tryon-service/internal/infra/logging"
	"virtual-tryon-service/internal/infra/metrics"
)

// ImageInput is either a reference to an already hosted image or raw bytes
// to be stored in the blob store first.
type ImageInput struct {
	URL         string
	Data        []byte
	ContentType string
}

type CreateParams struct {
	Person   ImageInput
	Garment  ImageInput
	Category string
}

// TryOnUseCase is the request path: store inputs, create the session in
// queued, and enqueue the provider submission durably, all before the
// HTTP response returns.
type TryOnUseCase interface {
	Create(ctx context.Context, p CreateParams) (*model.TryOnSession, error)
	Get(ctx context.Context, id string) (*model.TryOnSession, error)
}

type tryOnUseCase struct {
	sessions        repository.SessionRepository
	queue           repository.SubmitQueueRepository
	tm              repository.TransactionManager
	blobs           adapter.BlobStorageAdapter
	defaultCategory string
	log             *zerolog.Logger
}

var _ TryOnUseCase = (*tryOnUseCase)(nil)

func NewTryOnUseCase(
	sessions repository.SessionRepository,
	queue repository.SubmitQueueRepository,
	tm repository.TransactionManager,
	blobs adapter.BlobStorageAdapter,
	defaultCategory string,
	logger *zerolog.Logger,
) *tryOnUseCase {
	l := logger.With().Str("component", "TryOnUseCase").Logger()
	return &tryOnUseCase{
		sessions:        sessions,
		queue:           queue,
		tm:              tm,
		blobs:           blobs,
		defaultCategory: defaultCategory,
		log:             &l,
	}
}

func (u *tryOnUseCase) Create(ctx context.Context, p CreateParams) (*model.TryOnSession, error) {
	defer logging.TraceDuration(u.log, "TryOnUseCase.Create")()
	if err := validateInput(p.Person); err != nil {
		return nil, fmt.Errorf("person image: %w", err)
	}
	if err := validateInput(p.Garment); err != nil {
		return nil, fmt.Errorf("garment image: %w", err)
	}
	category := p.Category
	if category == "" {
		category = u.defaultCategory
	}

	id := strings.ToLower(ulid.Make().String())

	personURL, err := u.resolveImage(ctx, id, "person", p.Person)
	if err != nil {
		return nil, err
	}
	garmentURL, err := u.resolveImage(ctx, id, "garment", p.Garment)
	if err != nil {
		return nil, err
	}

	session := model.NewTryOnSession(id, personURL, garmentURL, category)

	// Session and queue row commit together: a crash after the response can
	// lose neither the record nor the pending submission.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.sessions.Create(ctx, tx, session); err != nil {
			return err
		}
		return u.queue.Enqueue(ctx, tx, &model.SubmitJob{SessionID: session.ID})
	})
	if err != nil {
		return nil, err
	}

	metrics.IncSessionCreated()
	u.log.Info().Str("session_id", session.ID).Str("category", category).Msg("try-on session created")
	return session, nil
}

func (u *tryOnUseCase) Get(ctx context.Context, id string) (*model.TryOnSession, error) {
	return u.sessions.FindByID(ctx, nil, id)
}

func (u *tryOnUseCase) resolveImage(ctx context.Context, sessionID, name string, in ImageInput) (string, error) {
	if in.URL != "" {
		return in.URL, nil
	}
	path := fmt.Sprintf("sessions/%s/%s%s", sessionID, name, extFor(in.ContentType))
	url, err := u.blobs.Put(ctx, path, in.Data, in.ContentType)
	if err != nil {
		return "", fmt.Errorf("store %s image: %w", name, err)
	}
	return url, nil
}

func validateInput(in ImageInput) error {
	if in.URL == "" && len(in.Data) == 0 {
		return domain.ErrInvalidArgument
	}
	return nil
}

func extFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
