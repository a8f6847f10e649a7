package tryon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"virtual-tryon-service/internal/domain/ports/adapter"
)

var _ adapter.TryOnProviderAdapter = (*NoopAdapter)(nil)

// NoopAdapter implements adapter.TryOnProviderAdapter for local/dev runs.
// Submissions are accepted immediately and every job "completes" after a
// fixed delay, echoing the person image back as the result.
type NoopAdapter struct {
	delay time.Duration

	mu   sync.Mutex
	jobs map[string]noopJob
	seq  int
}

type noopJob struct {
	submittedAt time.Time
	resultURL   string
}

func NewNoopAdapter(delay time.Duration) *NoopAdapter {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &NoopAdapter{delay: delay, jobs: make(map[string]noopJob)}
}

func (a *NoopAdapter) Submit(ctx context.Context, p adapter.SubmitParams) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	jobID := fmt.Sprintf("noop-%d", a.seq)
	a.jobs[jobID] = noopJob{submittedAt: time.Now(), resultURL: p.PersonImageURL}
	return jobID, nil
}

func (a *NoopAdapter) PollStatus(ctx context.Context, jobID string) (adapter.ProviderStatus, error) {
	a.mu.Lock()
	j, ok := a.jobs[jobID]
	a.mu.Unlock()
	if !ok {
		return adapter.ProviderStatus{State: adapter.ProviderStateFailed, ErrorMessage: "unknown job"}, nil
	}
	if time.Since(j.submittedAt) < a.delay {
		return adapter.ProviderStatus{State: adapter.ProviderStateRunning, Progress: 50}, nil
	}
	return adapter.ProviderStatus{State: adapter.ProviderStateCompleted, ResultImageURL: j.resultURL}, nil
}
