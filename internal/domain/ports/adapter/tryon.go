package adapter

import "context"

// SubmitParams are the inputs for one provider submission.
type SubmitParams struct {
	PersonImageURL  string
	GarmentImageURL string
	Category        string // upper_body | lower_body | dresses
	CallbackURL     string
}

// ProviderState is the provider's own view of a job.
type ProviderState string

const (
	ProviderStateRunning   ProviderState = "running"
	ProviderStateCompleted ProviderState = "completed"
	ProviderStateFailed    ProviderState = "failed"
)

// ProviderStatus is a poll response.
type ProviderStatus struct {
	State          ProviderState
	ResultImageURL string
	ErrorMessage   string
	Progress       int
}

// TryOnProviderAdapter is the port for the external try-on provider. Both
// calls block on network I/O and must be invoked under a timeout; neither
// holds any lock while blocked.
type TryOnProviderAdapter interface {
	Submit(ctx context.Context, p SubmitParams) (jobID string, err error)
	PollStatus(ctx context.Context, jobID string) (ProviderStatus, error)
}
