package model

import "time"

type SessionStatus string

const (
	SessionStatusQueued     SessionStatus = "queued"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// Error kinds persisted on a failed session.
const (
	ErrKindSubmissionExhausted = "submission_exhausted"
	ErrKindProviderFailure     = "provider_failure"
	ErrKindMissingResult       = "missing_result"
	ErrKindTimeout             = "timeout"
)

// TryOnSession is the persisted lifecycle record of one try-on request.
// Status is monotonic: once completed or failed no further transition is
// legal. Version is the optimistic-concurrency token; every update bumps it.
type TryOnSession struct {
	ID              string
	Status          SessionStatus
	JobID           string
	PersonImageURL  string
	GarmentImageURL string
	Category        string
	ResultImageURL  string
	ErrorKind       string
	ErrorMessage    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the session has reached a final state.
func (s *TryOnSession) Terminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusFailed
}

func NewTryOnSession(id, personURL, garmentURL, category string) *TryOnSession {
	now := time.Now()
	return &TryOnSession{
		ID:              id,
		Status:          SessionStatusQueued,
		PersonImageURL:  personURL,
		GarmentImageURL: garmentURL,
		Category:        category,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
