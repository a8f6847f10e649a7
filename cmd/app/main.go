// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"virtual-tryon-service/internal/config"
	"virtual-tryon-service/internal/domain/ports/adapter"
	tryonAdapters "virtual-tryon-service/internal/infra/adapters/tryon"
	pg "virtual-tryon-service/internal/infra/db/postgres"
	"virtual-tryon-service/internal/infra/logging"
	"virtual-tryon-service/internal/infra/metrics"
	red "virtual-tryon-service/internal/infra/redis"
	"virtual-tryon-service/internal/infra/sched"
	"virtual-tryon-service/internal/infra/storage"
	"virtual-tryon-service/internal/infra/web"
	"virtual-tryon-service/internal/infra/worker"
	"virtual-tryon-service/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop provider/storage fallbacks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	progressCache := red.NewProgressCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	sessionRepo := pg.NewSessionRepo(pool)
	linkRepo := pg.NewJobLinkRepo(pool)
	queueRepo := pg.NewSubmitQueueRepo(pool, tm)

	// ---- Blob storage ----
	var blobs adapter.BlobStorageAdapter
	if cfg.Storage.Bucket != "" {
		blobs, err = storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("s3 storage")
		}
		logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("blob storage: S3")
	} else if cfg.Runtime.Dev {
		blobs = storage.NewNoopStore("")
		logger.Warn().Msg("blob storage: noop (dev mode)")
	} else {
		logger.Fatal().Msg("storage.bucket is required outside dev mode")
	}

	// ---- Provider adapter ----
	var provider adapter.TryOnProviderAdapter
	if cfg.Provider.APIKey != "" {
		provider, err = tryonAdapters.NewPixazoAdapter(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.SubmitTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("pixazo adapter")
		}
		logger.Info().Str("base_url", cfg.Provider.BaseURL).Msg("try-on provider: pixazo")
	} else if cfg.Runtime.Dev {
		provider = tryonAdapters.NewNoopAdapter(5 * time.Second)
		logger.Warn().Msg("try-on provider: noop (dev mode)")
	} else {
		logger.Fatal().Msg("provider.api_key is required outside dev mode")
	}

	// ---- Use cases ----
	lifecycle := usecase.NewSessionLifecycle(sessionRepo, linkRepo, tm, progressCache, logger)
	tryonUC := usecase.NewTryOnUseCase(sessionRepo, queueRepo, tm, blobs, cfg.Provider.DefaultCategory, logger)

	// ---- Callback URL + token ----
	tokens := web.NewCallbackTokenManager(cfg.Provider.CallbackSecret, cfg.Provider.CallbackTTL)
	callbackURL := func(sessionID string) string {
		return web.BuildCallbackURL(cfg.Server.PublicURL, cfg.Server.WebhookPath, sessionID, tokens)
	}

	// ---- Workers ----
	workerPool := worker.NewPool(cfg.Worker.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	processor := worker.NewSubmitProcessor(
		queueRepo, sessionRepo, provider, lifecycle,
		callbackURL, cfg.Worker, cfg.Provider.SubmitTimeout, logger,
	)
	go processor.Start(ctx, workerPool)

	poller := sched.NewFallbackPoller(
		sessionRepo, provider, lifecycle, locker,
		cfg.Poller, cfg.Provider.PollTimeout, logger,
	)
	go func() { _ = poller.Run(ctx) }()

	// ---- HTTP server ----
	srv := web.NewServer(tryonUC, lifecycle, progressCache, tokens, cfg.Server.WebhookPath, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Routes(),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
