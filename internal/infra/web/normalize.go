package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"virtual-tryon-service/internal/domain/model"
)

// Provider callback payloads are not stable: the same gateway has been seen
// naming the job id job_id, id, jobId or task_id, the outcome status, state
// or status_code, and so on. normalizeWebhook folds every observed alias
// into one canonical Signal; adding a parser per shape is exactly the
// duplication this replaces.

var (
	jobIDAliases  = []string{"job_id", "id", "jobId", "task_id"}
	resultAliases = []string{"result_image_url", "resultUrl", "result_url", "output_img_url", "image_url", "result"}
	errorAliases  = []string{"error_message", "error", "message"}
)

// normalizeWebhook turns a raw callback body into a Signal. The only error
// case is a body that is not a JSON object at all; a recognizable-but-empty
// payload normalizes to a signal the lifecycle will classify as orphan.
func normalizeWebhook(body []byte) (model.Signal, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Signal{}, fmt.Errorf("malformed webhook payload: %w", err)
	}

	sig := model.Signal{Source: model.SignalSourceWebhook}
	sig.JobID = firstString(raw, jobIDAliases)
	sig.ResultImageURL = firstString(raw, resultAliases)
	if v, ok := raw["session_id"].(string); ok {
		sig.SessionID = v
	}
	if v, ok := raw["progress"].(float64); ok {
		sig.Progress = int(v)
	}

	sig.Outcome = outcomeOf(raw)
	if sig.Outcome == model.SignalFailure {
		sig.ErrorMessage = firstString(raw, errorAliases)
	}
	return sig, nil
}

func outcomeOf(raw map[string]any) model.SignalOutcome {
	for _, k := range []string{"status", "state", "status_code"} {
		switch v := raw[k].(type) {
		case string:
			if o, ok := outcomeFromWord(v); ok {
				return o
			}
		case float64:
			// status_code occasionally arrives as an HTTP-ish number.
			switch {
			case v >= 200 && v < 300:
				return model.SignalSuccess
			case v >= 400:
				return model.SignalFailure
			}
		}
	}
	// A bare result URL with no status field still means done.
	if firstString(raw, resultAliases) != "" {
		return model.SignalSuccess
	}
	return model.SignalStillRunning
}

func outcomeFromWord(w string) (model.SignalOutcome, bool) {
	switch strings.ToLower(strings.TrimSpace(w)) {
	case "completed", "complete", "success", "succeeded", "done", "finished":
		return model.SignalSuccess, true
	case "failed", "failure", "error", "cancelled", "canceled":
		return model.SignalFailure, true
	case "processing", "pending", "running", "in_progress", "queued", "started":
		return model.SignalStillRunning, true
	}
	return model.SignalStillRunning, false
}

func firstString(raw map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
