package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"virtual-tryon-service/internal/config"
	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/adapter"
	"virtual-tryon-service/internal/domain/ports/repository"
	"virtual-tryon-service/internal/infra/logging"
	"virtual-tryon-service/internal/infra/metrics"
	"virtual-tryon-service/internal/usecase"
)

// CallbackURLFunc builds the provider callback URL for a session, session id
// and signed token embedded, so job linking is never required on the happy
// path.
type CallbackURLFunc func(sessionID string) string

// SubmitProcessor drains the durable submit queue: hand the session's inputs
// to the provider, record the job id, or retry with backoff until the
// attempt ceiling fails the session.
type SubmitProcessor struct {
	queue       repository.SubmitQueueRepository
	sessions    repository.SessionRepository
	provider    adapter.TryOnProviderAdapter
	lifecycle   usecase.SessionLifecycle
	callbackURL CallbackURLFunc
	cfg         config.WorkerConfig
	submitTO    time.Duration
	log         *zerolog.Logger
}

func NewSubmitProcessor(
	queue repository.SubmitQueueRepository,
	sessions repository.SessionRepository,
	provider adapter.TryOnProviderAdapter,
	lifecycle usecase.SessionLifecycle,
	callbackURL CallbackURLFunc,
	cfg config.WorkerConfig,
	submitTimeout time.Duration,
	logger *zerolog.Logger,
) *SubmitProcessor {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	l := logger.With().Str("component", "SubmitProcessor").Logger()
	return &SubmitProcessor{
		queue:       queue,
		sessions:    sessions,
		provider:    provider,
		lifecycle:   lifecycle,
		callbackURL: callbackURL,
		cfg:         cfg,
		submitTO:    submitTimeout,
		log:         &l,
	}
}

// Start runs the fetch loop until the context is cancelled. Should be run in
// a goroutine; actual submissions execute on the pool.
func (p *SubmitProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Msg("submit processor started")
	ticker := time.NewTicker(p.cfg.PollEvery)
	defer ticker.Stop()

	// Sweep once at boot so jobs orphaned by the previous process don't wait
	// a full lease interval.
	p.recoverStuck(ctx)
	lease := time.NewTicker(p.cfg.LeaseTTL / 2)
	defer lease.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("submit processor stopping")
			return
		case <-lease.C:
			p.recoverStuck(ctx)
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.ProcessOne(ctx)
				return nil
			})
		}
	}
}

// recoverStuck requeues jobs whose processing lease expired, usually because
// the worker holding them crashed between dequeue and resolution.
func (p *SubmitProcessor) recoverStuck(ctx context.Context) {
	n, err := p.queue.RequeueStuck(ctx, nil, time.Now().Add(-p.cfg.LeaseTTL))
	if err != nil {
		p.log.Error().Err(err).Msg("lease sweep failed")
		return
	}
	if n > 0 {
		p.log.Warn().Int("jobs", n).Msg("requeued submit jobs with expired leases")
	}
}

// ProcessOne handles a single queue row, if one is due.
func (p *SubmitProcessor) ProcessOne(ctx context.Context) {
	job, err := p.queue.FetchAndMarkProcessing(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("fetch submit job failed")
		}
		return
	}

	ctx = logging.WithSessID(ctx, job.SessionID)

	session, err := p.sessions.FindByID(ctx, nil, job.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// FK makes this nearly impossible; don't spin on it.
			_ = p.queue.MarkDead(ctx, nil, job.ID, "session does not exist")
			return
		}
		p.retryLater(ctx, job, err)
		return
	}

	// At-least-once delivery: a redelivered job whose session already moved
	// on exits without side effects.
	if session.Status != model.SessionStatusQueued {
		_ = p.queue.MarkDone(ctx, nil, job.ID)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, p.submitTO)
	jobID, err := p.provider.Submit(cctx, adapter.SubmitParams{
		PersonImageURL:  session.PersonImageURL,
		GarmentImageURL: session.GarmentImageURL,
		Category:        session.Category,
		CallbackURL:     p.callbackURL(session.ID),
	})
	cancel()
	if err != nil {
		p.retryLater(ctx, job, err)
		return
	}
	ctx = logging.WithJobID(ctx, jobID)

	if err := p.lifecycle.MarkSubmitted(ctx, session.ID, jobID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Session advanced or failed while we were submitting; the
			// provider's signal will route via the callback session id.
			_ = p.queue.MarkDone(ctx, nil, job.ID)
			return
		}
		logging.With(ctx, p.log).Error().Err(err).Msg("mark submitted failed")
		p.retryLater(ctx, job, err)
		return
	}

	_ = p.queue.MarkDone(ctx, nil, job.ID)
	logging.With(ctx, p.log).Info().Int("attempts", job.Attempts).Msg("submission accepted")
}

// retryLater reschedules with exponential backoff, or fails the session once
// the attempt ceiling is reached.
func (p *SubmitProcessor) retryLater(ctx context.Context, job *model.SubmitJob, cause error) {
	attempts := job.Attempts + 1
	if attempts >= p.cfg.MaxAttempts {
		msg := fmt.Sprintf("submission failed after %d attempts: %v", attempts, cause)
		if err := p.queue.MarkDead(ctx, nil, job.ID, cause.Error()); err != nil {
			p.log.Error().Err(err).Str("job", job.ID).Msg("mark dead failed")
		}
		if _, err := p.lifecycle.FailSubmission(ctx, job.SessionID, msg); err != nil {
			p.log.Error().Err(err).Str("session_id", job.SessionID).Msg("fail submission failed")
		}
		return
	}

	backoff := p.cfg.BackoffBase << uint(attempts-1)
	if backoff > p.cfg.BackoffLimit {
		backoff = p.cfg.BackoffLimit
	}
	metrics.IncSubmitRetry()
	p.log.Warn().Err(cause).
		Str("session_id", job.SessionID).
		Int("attempts", attempts).
		Dur("backoff", backoff).
		Msg("submission failed; rescheduling")
	if err := p.queue.Reschedule(ctx, nil, job.ID, attempts, cause.Error(), time.Now().Add(backoff)); err != nil {
		p.log.Error().Err(err).Str("job", job.ID).Msg("reschedule failed")
	}
}
