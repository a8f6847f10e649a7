package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"virtual-tryon-service/internal/config"
	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/adapter"
	"virtual-tryon-service/internal/domain/ports/repository"
	"virtual-tryon-service/internal/infra/redis"
	"virtual-tryon-service/internal/usecase"
)

const pollerLockKey = "tryon:fallback_poller"

// FallbackPoller is what makes the webhook channel best-effort: it
// periodically scans processing sessions no signal has touched lately, asks
// the provider directly, and feeds the answer into the lifecycle. Sessions
// past the hard ceiling are failed outright so nothing stays unresolved
// forever. A Redis lock keeps multiple replicas from scanning concurrently;
// correctness never depends on it, only efficiency.
type FallbackPoller struct {
	sessions  repository.SessionRepository
	provider  adapter.TryOnProviderAdapter
	lifecycle usecase.SessionLifecycle
	locker    redis.Locker
	cfg       config.PollerConfig
	pollTO    time.Duration
	log       *zerolog.Logger
}

func NewFallbackPoller(
	sessions repository.SessionRepository,
	provider adapter.TryOnProviderAdapter,
	lifecycle usecase.SessionLifecycle,
	locker redis.Locker,
	cfg config.PollerConfig,
	pollTimeout time.Duration,
	logger *zerolog.Logger,
) *FallbackPoller {
	l := logger.With().Str("component", "FallbackPoller").Logger()
	return &FallbackPoller{
		sessions:  sessions,
		provider:  provider,
		lifecycle: lifecycle,
		locker:    locker,
		cfg:       cfg,
		pollTO:    pollTimeout,
		log:       &l,
	}
}

func (p *FallbackPoller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.cfg.Interval).Msg("starting fallback poller")
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("stopping fallback poller")
			return ctx.Err()
		case <-ticker.C:
			p.scanOnce(ctx)
		}
	}
}

func (p *FallbackPoller) scanOnce(ctx context.Context) {
	token, err := p.locker.TryLock(ctx, pollerLockKey, p.cfg.Interval)
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) {
			p.log.Error().Err(err).Msg("poller lock failed")
		}
		return // another replica is scanning
	}
	defer func() { _ = p.locker.Unlock(ctx, pollerLockKey, token) }()

	cutoff := time.Now().Add(-p.cfg.StaleAfter)
	stale, err := p.sessions.ListStaleProcessing(ctx, nil, cutoff, p.cfg.BatchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("stale scan failed")
		return
	}

	for _, s := range stale {
		if ctx.Err() != nil {
			return
		}
		p.checkSession(ctx, s)
	}
}

func (p *FallbackPoller) checkSession(ctx context.Context, s *model.TryOnSession) {
	if time.Since(s.CreatedAt) > p.cfg.FailAfter {
		if _, err := p.lifecycle.FailTimedOut(ctx, s.ID); err != nil {
			p.log.Error().Err(err).Str("session_id", s.ID).Msg("timeout enforcement failed")
		}
		return
	}
	if s.JobID == "" {
		// Processing without a job id should not happen; the ceiling above
		// will eventually clean it up.
		return
	}

	cctx, cancel := context.WithTimeout(ctx, p.pollTO)
	status, err := p.provider.PollStatus(cctx, s.JobID)
	cancel()
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", s.ID).Str("job_id", s.JobID).Msg("poll failed")
		return
	}

	sig := signalFromStatus(s, status)
	result, err := p.lifecycle.ApplySignal(ctx, sig)
	if err != nil {
		p.log.Error().Err(err).Str("session_id", s.ID).Msg("apply poll signal failed")
		return
	}
	p.log.Debug().
		Str("session_id", s.ID).
		Str("outcome", string(sig.Outcome)).
		Str("result", string(result)).
		Msg("poll signal applied")
}

func signalFromStatus(s *model.TryOnSession, st adapter.ProviderStatus) model.Signal {
	sig := model.Signal{
		JobID:          s.JobID,
		SessionID:      s.ID,
		Outcome:        model.SignalStillRunning,
		ResultImageURL: st.ResultImageURL,
		ErrorMessage:   st.ErrorMessage,
		Progress:       st.Progress,
		Source:         model.SignalSourcePoll,
	}
	switch st.State {
	case adapter.ProviderStateCompleted:
		sig.Outcome = model.SignalSuccess
	case adapter.ProviderStateFailed:
		sig.Outcome = model.SignalFailure
	}
	return sig
}
