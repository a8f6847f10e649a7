package main

import (
	"context"
	"flag"
	"log"

	"virtual-tryon-service/internal/config"
	pg "virtual-tryon-service/internal/infra/db/postgres"
)

// Applies the service schema. Statements are idempotent so re-running is safe.
const schema = `
CREATE TABLE IF NOT EXISTS tryon_sessions (
    id                TEXT PRIMARY KEY,
    status            TEXT NOT NULL,
    job_id            TEXT NOT NULL DEFAULT '',
    person_image_url  TEXT NOT NULL,
    garment_image_url TEXT NOT NULL,
    category          TEXT NOT NULL DEFAULT 'upper_body',
    result_image_url  TEXT NOT NULL DEFAULT '',
    error_kind        TEXT NOT NULL DEFAULT '',
    error_message     TEXT NOT NULL DEFAULT '',
    version           BIGINT NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tryon_sessions_stale
    ON tryon_sessions (updated_at) WHERE status = 'processing';

CREATE TABLE IF NOT EXISTS job_links (
    job_id     TEXT PRIMARY KEY,
    session_id TEXT NOT NULL REFERENCES tryon_sessions(id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submit_jobs (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL REFERENCES tryon_sessions(id),
    status          TEXT NOT NULL DEFAULT 'pending',
    attempts        INT NOT NULL DEFAULT 0,
    last_error      TEXT NOT NULL DEFAULT '',
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submit_jobs_due
    ON submit_jobs (next_attempt_at) WHERE status = 'pending';
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")
}
