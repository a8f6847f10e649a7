package model

type SignalOutcome string

const (
	SignalSuccess      SignalOutcome = "success"
	SignalFailure      SignalOutcome = "failure"
	SignalStillRunning SignalOutcome = "still_running"
)

// Signal is the normalized, ephemeral view of an outcome report. Both the
// webhook receiver and the fallback poller produce Signals; only the session
// lifecycle consumes them. SessionID is optional; when absent the lifecycle
// resolves the session through the job link.
type Signal struct {
	JobID          string
	SessionID      string
	Outcome        SignalOutcome
	ResultImageURL string
	ErrorMessage   string
	Progress       int // 0..100, informational only
	Source         string
}

// Signal sources, used for logging and metrics labels.
const (
	SignalSourceWebhook = "webhook"
	SignalSourcePoll    = "poll"
)
