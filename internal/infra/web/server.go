// File: internal/infra/web/server.go
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"virtual-tryon-service/internal/infra/redis"
	"virtual-tryon-service/internal/usecase"
)

// ProgressReader is the slice of the progress cache the status endpoint
// needs.
type ProgressReader interface {
	Get(ctx context.Context, sessionID string) (*redis.Progress, error)
}

// linkRetries bounds how often the webhook handler re-tries resolution when
// the provider calls back before the submitting worker persisted the job
// link.
const (
	linkRetries    = 3
	linkRetryDelay = 150 * time.Millisecond
)

type Server struct {
	tryonUC     usecase.TryOnUseCase
	lifecycle   usecase.SessionLifecycle
	progress    ProgressReader
	tokens      *CallbackTokenManager
	webhookPath string
	log         *zerolog.Logger
}

func NewServer(
	tryonUC usecase.TryOnUseCase,
	lifecycle usecase.SessionLifecycle,
	progress ProgressReader,
	tokens *CallbackTokenManager,
	webhookPath string,
	logger *zerolog.Logger,
) *Server {
	if webhookPath == "" {
		webhookPath = "/webhook/try-on"
	}
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		tryonUC:     tryonUC,
		lifecycle:   lifecycle,
		progress:    progress,
		tokens:      tokens,
		webhookPath: webhookPath,
		log:         &l,
	}
}

func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, traceID, s.requestLog)

	r.Post("/api/v1/try-on", s.handleCreate)
	r.Get("/api/v1/try-on/{id}", s.handleStatus)
	r.Post(s.webhookPath, s.handleWebhook)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
