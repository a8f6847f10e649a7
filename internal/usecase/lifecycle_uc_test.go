package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/domain/ports/repository"
)

// ---- fakes ----

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.TryOnSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*model.TryOnSession)}
}

func (r *fakeSessionRepo) put(s *model.TryOnSession) {
	cp := *s
	r.mu.Lock()
	r.sessions[s.ID] = &cp
	r.mu.Unlock()
}

func (r *fakeSessionRepo) Create(ctx context.Context, qx repository.Tx, s *model.TryOnSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.TryOnSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) ConditionalUpdate(ctx context.Context, qx repository.Tx, id string, expectedStatus model.SessionStatus, expectedVersion int64, patch repository.SessionPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, nil
	}
	if s.Status != expectedStatus || s.Version != expectedVersion {
		return false, nil
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.JobID != nil {
		s.JobID = *patch.JobID
	}
	if patch.ResultURL != nil {
		s.ResultImageURL = *patch.ResultURL
	}
	if patch.ErrorKind != nil {
		s.ErrorKind = *patch.ErrorKind
	}
	if patch.ErrorMessage != nil {
		s.ErrorMessage = *patch.ErrorMessage
	}
	s.Version++
	s.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeSessionRepo) ListStaleProcessing(ctx context.Context, qx repository.Tx, olderThan time.Time, limit int) ([]*model.TryOnSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TryOnSession
	for _, s := range r.sessions {
		if s.Status == model.SessionStatusProcessing && s.UpdatedAt.Before(olderThan) {
			cp := *s
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeJobLinkRepo struct {
	mu    sync.Mutex
	links map[string]string
}

func newFakeJobLinkRepo() *fakeJobLinkRepo {
	return &fakeJobLinkRepo{links: make(map[string]string)}
}

func (r *fakeJobLinkRepo) Create(ctx context.Context, qx repository.Tx, link *model.JobLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.links[link.JobID]; ok {
		if existing == link.SessionID {
			return nil
		}
		return domain.ErrAlreadyExists
	}
	r.links[link.JobID] = link.SessionID
	return nil
}

func (r *fakeJobLinkRepo) Resolve(ctx context.Context, qx repository.Tx, jobID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.links[jobID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return id, nil
}

type fakeTxManager struct{}

func (fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

type fakeProgress struct {
	mu      sync.Mutex
	records map[string]int
}

func newFakeProgress() *fakeProgress { return &fakeProgress{records: make(map[string]int)} }

func (p *fakeProgress) Record(ctx context.Context, sessionID string, percent int, source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[sessionID] = percent
	return nil
}

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newLifecycleFixture() (*sessionLifecycle, *fakeSessionRepo, *fakeJobLinkRepo, *fakeProgress) {
	sessions := newFakeSessionRepo()
	links := newFakeJobLinkRepo()
	progress := newFakeProgress()
	lc := NewSessionLifecycle(sessions, links, fakeTxManager{}, progress, testLogger())
	return lc, sessions, links, progress
}

func queuedSession(id string) *model.TryOnSession {
	return model.NewTryOnSession(id, "https://img/person.jpg", "https://img/garment.jpg", "upper_body")
}

func processingSession(id, jobID string) *model.TryOnSession {
	s := queuedSession(id)
	s.Status = model.SessionStatusProcessing
	s.JobID = jobID
	s.Version = 2
	return s
}

// ---- MarkSubmitted ----

func TestMarkSubmittedMovesQueuedToProcessing(t *testing.T) {
	lc, sessions, links, _ := newLifecycleFixture()
	sessions.put(queuedSession("s1"))

	if err := lc.MarkSubmitted(context.Background(), "s1", "job-9"); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}

	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusProcessing {
		t.Errorf("status = %s, want processing", s.Status)
	}
	if s.JobID != "job-9" {
		t.Errorf("job id = %q, want job-9", s.JobID)
	}
	if s.Version != 2 {
		t.Errorf("version = %d, want 2", s.Version)
	}
	if id, err := links.Resolve(context.Background(), nil, "job-9"); err != nil || id != "s1" {
		t.Errorf("job link resolve = (%q, %v), want (s1, nil)", id, err)
	}
}

func TestMarkSubmittedConflictsWhenNotQueued(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	err := lc.MarkSubmitted(context.Background(), "s1", "job-2")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestMarkSubmittedUnknownSession(t *testing.T) {
	lc, _, _, _ := newLifecycleFixture()
	if err := lc.MarkSubmitted(context.Background(), "ghost", "job-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// ---- ApplySignal ----

func TestApplySignalSuccessCompletesSession(t *testing.T) {
	lc, sessions, links, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))
	_ = links.Create(context.Background(), nil, &model.JobLink{JobID: "job-1", SessionID: "s1"})

	res, err := lc.ApplySignal(context.Background(), model.Signal{
		JobID:          "job-1",
		Outcome:        model.SignalSuccess,
		ResultImageURL: "https://cdn/result.jpg",
		Source:         model.SignalSourceWebhook,
	})
	if err != nil || res != ApplyApplied {
		t.Fatalf("ApplySignal = (%s, %v), want (applied, nil)", res, err)
	}

	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", s.Status)
	}
	if s.ResultImageURL != "https://cdn/result.jpg" {
		t.Errorf("result url = %q", s.ResultImageURL)
	}
}

func TestApplySignalDuplicateTerminalIsIgnored(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	sig := model.Signal{
		SessionID:      "s1",
		Outcome:        model.SignalSuccess,
		ResultImageURL: "https://cdn/result.jpg",
		Source:         model.SignalSourceWebhook,
	}
	if res, err := lc.ApplySignal(context.Background(), sig); err != nil || res != ApplyApplied {
		t.Fatalf("first apply = (%s, %v)", res, err)
	}
	if res, err := lc.ApplySignal(context.Background(), sig); err != nil || res != ApplyIgnored {
		t.Fatalf("second apply = (%s, %v), want ignored", res, err)
	}

	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Version != 3 {
		t.Errorf("version = %d, want 3 (single transition)", s.Version)
	}
}

func TestApplySignalLateContradictionLoses(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	fail := model.Signal{SessionID: "s1", Outcome: model.SignalFailure, ErrorMessage: "boom", Source: model.SignalSourcePoll}
	ok := model.Signal{SessionID: "s1", Outcome: model.SignalSuccess, ResultImageURL: "https://cdn/r.jpg", Source: model.SignalSourceWebhook}

	if res, _ := lc.ApplySignal(context.Background(), fail); res != ApplyApplied {
		t.Fatalf("failure apply = %s", res)
	}
	if res, _ := lc.ApplySignal(context.Background(), ok); res != ApplyIgnored {
		t.Fatalf("late success = %s, want ignored", res)
	}

	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusFailed || s.ErrorKind != model.ErrKindProviderFailure {
		t.Errorf("session = %s/%s, want failed/provider_failure", s.Status, s.ErrorKind)
	}
	if s.ResultImageURL != "" {
		t.Errorf("result url leaked from losing signal: %q", s.ResultImageURL)
	}
}

func TestApplySignalConcurrentTerminalSignalsSingleWinner(t *testing.T) {
	// Webhook and poller can deliver contradictory outcomes for the same
	// session at the same time; exactly one may commit.
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	const n = 16
	start := make(chan struct{})
	results := make(chan ApplyResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		sig := model.Signal{SessionID: "s1", Outcome: model.SignalFailure, ErrorMessage: "boom", Source: model.SignalSourcePoll}
		if i%2 == 0 {
			sig = model.Signal{SessionID: "s1", Outcome: model.SignalSuccess, ResultImageURL: "https://cdn/r.jpg", Source: model.SignalSourceWebhook}
		}
		wg.Add(1)
		go func(sig model.Signal) {
			defer wg.Done()
			<-start
			res, err := lc.ApplySignal(context.Background(), sig)
			if err != nil {
				t.Errorf("ApplySignal: %v", err)
			}
			results <- res
		}(sig)
	}
	close(start)
	wg.Wait()
	close(results)

	applied, ignored := 0, 0
	for res := range results {
		switch res {
		case ApplyApplied:
			applied++
		case ApplyIgnored:
			ignored++
		default:
			t.Errorf("unexpected result %s", res)
		}
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want exactly one winner", applied)
	}
	if ignored != n-1 {
		t.Errorf("ignored = %d, want %d", ignored, n-1)
	}

	// The persisted record must match the winner wholesale, never a blend of
	// both outcomes.
	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	switch s.Status {
	case model.SessionStatusCompleted:
		if s.ResultImageURL != "https://cdn/r.jpg" || s.ErrorKind != "" {
			t.Errorf("completed session carries failure fields: result=%q kind=%q", s.ResultImageURL, s.ErrorKind)
		}
	case model.SessionStatusFailed:
		if s.ResultImageURL != "" || s.ErrorKind != model.ErrKindProviderFailure {
			t.Errorf("failed session carries success fields: result=%q kind=%q", s.ResultImageURL, s.ErrorKind)
		}
	default:
		t.Errorf("status = %s, want a terminal state", s.Status)
	}
	if s.Version != 3 {
		t.Errorf("version = %d, want 3 (single transition)", s.Version)
	}
}

func TestApplySignalTerminalFromQueued(t *testing.T) {
	// Callback can land before the worker observed the submission response.
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(queuedSession("s1"))

	res, err := lc.ApplySignal(context.Background(), model.Signal{
		SessionID:      "s1",
		Outcome:        model.SignalSuccess,
		ResultImageURL: "https://cdn/r.jpg",
		Source:         model.SignalSourceWebhook,
	})
	if err != nil || res != ApplyApplied {
		t.Fatalf("ApplySignal = (%s, %v)", res, err)
	}
	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusCompleted {
		t.Errorf("status = %s, want completed", s.Status)
	}
}

func TestApplySignalSuccessWithoutResultFails(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	res, err := lc.ApplySignal(context.Background(), model.Signal{
		SessionID: "s1",
		Outcome:   model.SignalSuccess,
		Source:    model.SignalSourceWebhook,
	})
	if err != nil || res != ApplyApplied {
		t.Fatalf("ApplySignal = (%s, %v)", res, err)
	}
	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusFailed || s.ErrorKind != model.ErrKindMissingResult {
		t.Errorf("session = %s/%s, want failed/missing_result", s.Status, s.ErrorKind)
	}
}

func TestApplySignalOrphan(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	res, err := lc.ApplySignal(context.Background(), model.Signal{
		JobID:          "unknown-job",
		Outcome:        model.SignalSuccess,
		ResultImageURL: "https://cdn/r.jpg",
		Source:         model.SignalSourceWebhook,
	})
	if err != nil || res != ApplyOrphan {
		t.Fatalf("ApplySignal = (%s, %v), want orphan", res, err)
	}

	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusProcessing || s.Version != 2 {
		t.Errorf("orphan signal mutated unrelated session: %s v%d", s.Status, s.Version)
	}
}

func TestApplySignalStillRunningResetsStaleness(t *testing.T) {
	lc, sessions, _, progress := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	res, err := lc.ApplySignal(context.Background(), model.Signal{
		SessionID: "s1",
		Outcome:   model.SignalStillRunning,
		Progress:  42,
		Source:    model.SignalSourcePoll,
	})
	if err != nil || res != ApplyIgnored {
		t.Fatalf("ApplySignal = (%s, %v), want ignored", res, err)
	}

	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusProcessing {
		t.Errorf("status changed to %s", s.Status)
	}
	if s.Version != 3 {
		t.Errorf("version = %d, want 3 (staleness bump)", s.Version)
	}
	if progress.records["s1"] != 42 {
		t.Errorf("progress = %d, want 42", progress.records["s1"])
	}
}

// ---- forced failures ----

func TestFailTimedOut(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	applied, err := lc.FailTimedOut(context.Background(), "s1")
	if err != nil || !applied {
		t.Fatalf("FailTimedOut = (%v, %v)", applied, err)
	}
	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusFailed || s.ErrorKind != model.ErrKindTimeout {
		t.Errorf("session = %s/%s, want failed/timeout", s.Status, s.ErrorKind)
	}

	// Second call is a no-op.
	if applied, err := lc.FailTimedOut(context.Background(), "s1"); err != nil || applied {
		t.Errorf("second FailTimedOut = (%v, %v), want (false, nil)", applied, err)
	}
}

func TestFailSubmission(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(queuedSession("s1"))

	applied, err := lc.FailSubmission(context.Background(), "s1", "provider rejected us 5 times")
	if err != nil || !applied {
		t.Fatalf("FailSubmission = (%v, %v)", applied, err)
	}
	s, _ := sessions.FindByID(context.Background(), nil, "s1")
	if s.Status != model.SessionStatusFailed || s.ErrorKind != model.ErrKindSubmissionExhausted {
		t.Errorf("session = %s/%s, want failed/submission_exhausted", s.Status, s.ErrorKind)
	}
}

func TestFailSubmissionSkipsNonQueued(t *testing.T) {
	lc, sessions, _, _ := newLifecycleFixture()
	sessions.put(processingSession("s1", "job-1"))

	applied, err := lc.FailSubmission(context.Background(), "s1", "late")
	if err != nil || applied {
		t.Fatalf("FailSubmission = (%v, %v), want (false, nil)", applied, err)
	}
}
