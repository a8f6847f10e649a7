// File: internal/infra/adapters/tryon/pixazo_adapter.go
package tryon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"virtual-tryon-service/internal/domain/ports/adapter"
	"virtual-tryon-service/internal/infra/metrics"
)

var _ adapter.TryOnProviderAdapter = (*PixazoAdapter)(nil)

// PixazoAdapter implements adapter.TryOnProviderAdapter against the Pixazo
// virtual try-on gateway (POST /virtual-tryon/v1/r-vton, GET .../{id}).
// Auth is an Ocp-Apim-Subscription-Key header.
type PixazoAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewPixazoAdapter(baseURL, apiKey string, timeout time.Duration) (*PixazoAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("provider base url empty")
	}
	if apiKey == "" {
		return nil, errors.New("provider api key empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PixazoAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *PixazoAdapter) endpoint(path string) string {
	return p.baseURL + "/virtual-tryon/v1/r-vton" + path
}

func (p *PixazoAdapter) Submit(ctx context.Context, params adapter.SubmitParams) (string, error) {
	payload := map[string]any{
		"category":     params.Category,
		"human_img":    params.PersonImageURL,
		"garm_img":     params.GarmentImageURL,
		"callback_url": params.CallbackURL,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(""), bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveProviderCall("submit", latency, false)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		metrics.ObserveProviderCall("submit", latency, false)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("provider submit: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		ID    string `json:"id"`
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveProviderCall("submit", latency, false)
		return "", fmt.Errorf("provider submit: decode response: %w", err)
	}
	jobID := out.ID
	if jobID == "" {
		jobID = out.JobID
	}
	if jobID == "" {
		metrics.ObserveProviderCall("submit", latency, false)
		return "", errors.New("provider submit: response carries no job id")
	}
	metrics.ObserveProviderCall("submit", latency, true)
	return jobID, nil
}

func (p *PixazoAdapter) PollStatus(ctx context.Context, jobID string) (adapter.ProviderStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/"+jobID), nil)
	if err != nil {
		return adapter.ProviderStatus{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveProviderCall("poll", latency, false)
		return adapter.ProviderStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProviderCall("poll", latency, false)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return adapter.ProviderStatus{}, fmt.Errorf("provider poll: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		metrics.ObserveProviderCall("poll", latency, false)
		return adapter.ProviderStatus{}, fmt.Errorf("provider poll: decode response: %w", err)
	}
	metrics.ObserveProviderCall("poll", latency, true)
	return parsePollResponse(raw), nil
}

// parsePollResponse maps the provider's loosely specified status document
// onto ProviderStatus. The gateway has been observed to answer with either a
// bare output_img_url, a status field, or a state field.
func parsePollResponse(raw map[string]any) adapter.ProviderStatus {
	st := adapter.ProviderStatus{State: adapter.ProviderStateRunning}

	for _, k := range []string{"output_img_url", "result_image_url", "result_url", "image_url", "result"} {
		if v, ok := raw[k].(string); ok && v != "" {
			st.ResultImageURL = v
			break
		}
	}
	if v, ok := raw["progress"].(float64); ok {
		st.Progress = int(v)
	}

	var word string
	for _, k := range []string{"status", "state"} {
		if v, ok := raw[k].(string); ok && v != "" {
			word = strings.ToLower(v)
			break
		}
	}
	switch word {
	case "completed", "success", "succeeded", "done", "finished":
		st.State = adapter.ProviderStateCompleted
	case "failed", "error", "cancelled", "canceled":
		st.State = adapter.ProviderStateFailed
		if v, ok := raw["error"].(string); ok {
			st.ErrorMessage = v
		} else if v, ok := raw["error_message"].(string); ok {
			st.ErrorMessage = v
		} else if v, ok := raw["message"].(string); ok {
			st.ErrorMessage = v
		}
	default:
		// A result URL with no recognizable status word still means done.
		if st.ResultImageURL != "" {
			st.State = adapter.ProviderStateCompleted
		}
	}
	return st
}
