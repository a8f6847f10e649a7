package model

import "time"

// JobLink maps the provider's job id back to the owning session. It is
// written exactly once, when the provider accepts a submission, and is
// read-only afterwards.
type JobLink struct {
	JobID     string
	SessionID string
	CreatedAt time.Time
}
