package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"virtual-tryon-service/internal/domain"
	"virtual-tryon-service/internal/domain/model"
	"virtual-tryon-service/internal/infra/logging"
	"virtual-tryon-service/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type imagePayload struct {
	URL         string `json:"url"`
	Base64      string `json:"base64"`
	ContentType string `json:"content_type"`
}

type createRequest struct {
	PersonImage  imagePayload `json:"person_image"`
	GarmentImage imagePayload `json:"garment_image"`
	Category     string       `json:"category"`
}

type sessionResponse struct {
	SessionID      string     `json:"session_id"`
	Status         string     `json:"status"`
	ResultImageURL string     `json:"result_image_url,omitempty"`
	Progress       int        `json:"progress,omitempty"`
	Error          *errorInfo `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type errorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	person, err := toImageInput(req.PersonImage)
	if err != nil {
		http.Error(w, "person_image: "+err.Error(), http.StatusBadRequest)
		return
	}
	garment, err := toImageInput(req.GarmentImage)
	if err != nil {
		http.Error(w, "garment_image: "+err.Error(), http.StatusBadRequest)
		return
	}

	session, err := s.tryonUC.Create(ctx, usecase.CreateParams{
		Person:   person,
		Garment:  garment,
		Category: req.Category,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logging.With(ctx, s.log).Error().Err(err).Msg("create session failed")
		http.Error(w, "Failed to create try-on session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: session.ID,
		Status:    string(session.Status),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	session, err := s.tryonUC.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		logging.With(ctx, s.log).Error().Err(err).Str("session_id", id).Msg("read session failed")
		http.Error(w, "Failed to read session", http.StatusInternalServerError)
		return
	}

	resp := sessionResponse{
		SessionID:      session.ID,
		Status:         string(session.Status),
		ResultImageURL: session.ResultImageURL,
		CreatedAt:      session.CreatedAt,
		UpdatedAt:      session.UpdatedAt,
	}
	if session.Status == model.SessionStatusFailed {
		resp.Error = &errorInfo{Kind: session.ErrorKind, Message: session.ErrorMessage}
	}
	if session.Status == model.SessionStatusProcessing && s.progress != nil {
		if p, err := s.progress.Get(ctx, session.ID); err == nil && p != nil {
			resp.Progress = p.Percent
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWebhook accepts the provider callback. Applied, ignored and orphan
// signals are all acknowledged with 200 so the provider never abandons
// delivery for a session we did handle; only structurally unparseable bodies
// get a 400.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logging.With(ctx, s.log)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	sig, err := normalizeWebhook(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"accepted": false, "error": "malformed payload"})
		return
	}

	// The callback URL we handed out embeds the session id behind a signed
	// token. A missing or invalid token is not an error: resolution falls
	// back to the job link.
	if tok := r.URL.Query().Get("token"); tok != "" && s.tokens != nil {
		if sessionID, err := s.tokens.Verify(tok); err == nil {
			sig.SessionID = sessionID
		} else {
			l.Debug().Err(err).Msg("callback token rejected; falling back to job link")
		}
	}
	if sig.SessionID == "" {
		sig.SessionID = r.URL.Query().Get("session_id")
	}

	result, err := s.applyWithLinkRetry(ctx, sig)
	if err != nil {
		l.Error().Err(err).Str("job_id", sig.JobID).Msg("apply webhook signal failed")
		http.Error(w, "Failed to process callback", http.StatusInternalServerError)
		return
	}

	l.Info().
		Str("job_id", sig.JobID).
		Str("session_id", sig.SessionID).
		Str("outcome", string(sig.Outcome)).
		Str("result", string(result)).
		Msg("webhook processed")
	writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

// applyWithLinkRetry re-tries orphan resolution briefly: in a true-async
// provider the callback can land before the submitting worker has persisted
// the job link.
func (s *Server) applyWithLinkRetry(ctx context.Context, sig model.Signal) (usecase.ApplyResult, error) {
	result, err := s.lifecycle.ApplySignal(ctx, sig)
	if err != nil {
		return result, err
	}
	for i := 0; result == usecase.ApplyOrphan && sig.SessionID == "" && sig.JobID != "" && i < linkRetries; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(linkRetryDelay):
		}
		result, err = s.lifecycle.ApplySignal(ctx, sig)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func toImageInput(p imagePayload) (usecase.ImageInput, error) {
	in := usecase.ImageInput{URL: p.URL, ContentType: p.ContentType}
	if p.Base64 != "" {
		raw := p.Base64
		// Tolerate data-URI payloads: data:image/png;base64,....
		if i := strings.Index(raw, ","); i >= 0 && strings.HasPrefix(raw, "data:") {
			if in.ContentType == "" {
				meta := raw[5:i]
				if j := strings.Index(meta, ";"); j >= 0 {
					in.ContentType = meta[:j]
				}
			}
			raw = raw[i+1:]
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return in, errors.New("invalid base64 payload")
		}
		in.Data = data
	}
	if in.ContentType == "" {
		in.ContentType = "image/jpeg"
	}
	return in, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
