// File: internal/usecase/lifecycle_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/repository"
	"virtual-tryon-service/internal/infra/logging"
	"virtual-tryon-service/internal/infra/metrics"
)

// ApplyResult classifies what a signal did to its session.
type ApplyResult string

const (
	ApplyApplied ApplyResult = "applied"
	ApplyIgnored ApplyResult = "ignored"
	ApplyOrphan  ApplyResult = "orphan"
)

// ProgressRecorder receives non-terminal progress reports. Best-effort;
// failures are logged, never propagated.
type ProgressRecorder interface {
	Record(ctx context.Context, sessionID string, percent int, source string) error
}

// SessionLifecycle is the sole writer of session status. The webhook
// receiver, the fallback poller and the submit worker all funnel their
// outcomes through here; every transition is a conditional update, so
// concurrent callers across replicas resolve to exactly one winner.
type SessionLifecycle interface {
	// MarkSubmitted moves a queued session to processing and creates the
	// job link atomically. Returns domain.ErrConflict when the session is
	// no longer queued; callers treat that as non-fatal and stop retrying.
	MarkSubmitted(ctx context.Context, sessionID, jobID string) error

	// ApplySignal applies a normalized completion signal. Idempotent:
	// re-applying a terminal signal to a terminal session is ApplyIgnored.
	ApplySignal(ctx context.Context, sig model.Signal) (ApplyResult, error)

	// FailTimedOut forces a processing session past the hard ceiling to
	// failed/timeout. Returns false when the session won the race to a
	// different terminal state first.
	FailTimedOut(ctx context.Context, sessionID string) (bool, error)

	// FailSubmission fails a still-queued session whose provider submission
	// retries were exhausted. The one lifecycle entry point the worker calls
	// outside of an inbound signal.
	FailSubmission(ctx context.Context, sessionID, message string) (bool, error)
}

type sessionLifecycle struct {
	sessions repository.SessionRepository
	links    repository.JobLinkRepository
	tm       repository.TransactionManager
	progress ProgressRecorder
	log      *zerolog.Logger
}

var _ SessionLifecycle = (*sessionLifecycle)(nil)

func NewSessionLifecycle(
	sessions repository.SessionRepository,
	links repository.JobLinkRepository,
	tm repository.TransactionManager,
	progress ProgressRecorder,
	logger *zerolog.Logger,
) *sessionLifecycle {
	l := logger.With().Str("component", "SessionLifecycle").Logger()
	return &sessionLifecycle{
		sessions: sessions,
		links:    links,
		tm:       tm,
		progress: progress,
		log:      &l,
	}
}

func (l *sessionLifecycle) MarkSubmitted(ctx context.Context, sessionID, jobID string) error {
	defer logging.TraceDuration(l.log, "SessionLifecycle.MarkSubmitted")()
	s, err := l.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if s.Status != model.SessionStatusQueued {
		return domain.ErrConflict
	}

	newStatus := model.SessionStatusProcessing
	err = l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		applied, err := l.sessions.ConditionalUpdate(ctx, tx, sessionID, model.SessionStatusQueued, s.Version,
			repository.SessionPatch{Status: &newStatus, JobID: &jobID})
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrConflict
		}
		return l.links.Create(ctx, tx, &model.JobLink{JobID: jobID, SessionID: sessionID})
	})
	if err != nil {
		return err
	}

	metrics.IncSessionTransition(string(newStatus))
	l.log.Info().Str("session_id", sessionID).Str("job_id", jobID).Msg("session submitted to provider")
	return nil
}

func (l *sessionLifecycle) ApplySignal(ctx context.Context, sig model.Signal) (ApplyResult, error) {
	defer logging.TraceDuration(l.log, "SessionLifecycle.ApplySignal")()
	sessionID := sig.SessionID
	if sessionID == "" {
		if sig.JobID == "" {
			return l.orphan(sig, "signal carries neither session id nor job id"), nil
		}
		id, err := l.links.Resolve(ctx, nil, sig.JobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return l.orphan(sig, "no job link for job id"), nil
			}
			return ApplyIgnored, err
		}
		sessionID = id
	}

	s, err := l.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return l.orphan(sig, "session does not exist"), nil
		}
		return ApplyIgnored, err
	}

	if s.Terminal() {
		metrics.IncSignal(sig.Source, string(ApplyIgnored))
		return ApplyIgnored, nil
	}

	if sig.Outcome == model.SignalStillRunning {
		// Staleness-timer reset only; status never changes. Losing the
		// conditional bump to a racing terminal write is fine.
		if s.Status == model.SessionStatusProcessing {
			if _, err := l.sessions.ConditionalUpdate(ctx, nil, s.ID, s.Status, s.Version, repository.SessionPatch{}); err != nil {
				return ApplyIgnored, err
			}
		}
		if l.progress != nil {
			if err := l.progress.Record(ctx, s.ID, sig.Progress, sig.Source); err != nil {
				l.log.Warn().Err(err).Str("session_id", s.ID).Msg("progress record failed")
			}
		}
		metrics.IncSignal(sig.Source, string(ApplyIgnored))
		return ApplyIgnored, nil
	}

	patch := terminalPatch(sig)
	applied, err := l.sessions.ConditionalUpdate(ctx, nil, s.ID, s.Status, s.Version, patch)
	if err != nil {
		return ApplyIgnored, err
	}
	if !applied {
		// Lost the race: a concurrent signal committed first.
		metrics.IncSignal(sig.Source, string(ApplyIgnored))
		return ApplyIgnored, nil
	}

	metrics.IncSignal(sig.Source, string(ApplyApplied))
	metrics.IncSessionTransition(string(*patch.Status))
	l.log.Info().
		Str("session_id", s.ID).
		Str("source", sig.Source).
		Str("status", string(*patch.Status)).
		Msg("session reached terminal state")
	return ApplyApplied, nil
}

func (l *sessionLifecycle) FailTimedOut(ctx context.Context, sessionID string) (bool, error) {
	s, err := l.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return false, err
	}
	if s.Status != model.SessionStatusProcessing {
		return false, nil
	}
	failed := model.SessionStatusFailed
	kind := model.ErrKindTimeout
	msg := "no completion signal from webhook or polling within the ceiling"
	applied, err := l.sessions.ConditionalUpdate(ctx, nil, s.ID, s.Status, s.Version,
		repository.SessionPatch{Status: &failed, ErrorKind: &kind, ErrorMessage: &msg})
	if err != nil {
		return false, err
	}
	if applied {
		metrics.IncSessionTransition(string(failed))
		l.log.Warn().Str("session_id", s.ID).Msg("session timed out")
	}
	return applied, nil
}

func (l *sessionLifecycle) FailSubmission(ctx context.Context, sessionID, message string) (bool, error) {
	s, err := l.sessions.FindByID(ctx, nil, sessionID)
	if err != nil {
		return false, err
	}
	if s.Status != model.SessionStatusQueued {
		return false, nil
	}
	failed := model.SessionStatusFailed
	kind := model.ErrKindSubmissionExhausted
	if message == "" {
		message = "could not hand the job to the provider"
	}
	applied, err := l.sessions.ConditionalUpdate(ctx, nil, s.ID, s.Status, s.Version,
		repository.SessionPatch{Status: &failed, ErrorKind: &kind, ErrorMessage: &message})
	if err != nil {
		return false, err
	}
	if applied {
		metrics.IncSessionTransition(string(failed))
		l.log.Error().Str("session_id", s.ID).Str("reason", message).Msg("submission retries exhausted")
	}
	return applied, nil
}

// terminalPatch maps a terminal signal onto the write it implies. A success
// with no usable artifact is a failure: we never mark completed without a
// result image.
func terminalPatch(sig model.Signal) repository.SessionPatch {
	completed := model.SessionStatusCompleted
	failed := model.SessionStatusFailed

	if sig.Outcome == model.SignalSuccess {
		if sig.ResultImageURL == "" {
			kind := model.ErrKindMissingResult
			msg := "provider reported success without a result image"
			return repository.SessionPatch{Status: &failed, ErrorKind: &kind, ErrorMessage: &msg}
		}
		result := sig.ResultImageURL
		return repository.SessionPatch{Status: &completed, ResultURL: &result}
	}

	kind := model.ErrKindProviderFailure
	msg := sig.ErrorMessage
	if msg == "" {
		msg = "provider reported failure"
	}
	return repository.SessionPatch{Status: &failed, ErrorKind: &kind, ErrorMessage: &msg}
}

func (l *sessionLifecycle) orphan(sig model.Signal, reason string) ApplyResult {
	metrics.IncOrphanSignal()
	metrics.IncSignal(sig.Source, string(ApplyOrphan))
	l.log.Warn().
		Str("job_id", sig.JobID).
		Str("source", sig.Source).
		Str("reason", reason).
		Msg("dropping orphan signal")
	return ApplyOrphan
}
