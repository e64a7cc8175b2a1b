package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaTimeout = 30 * time.Second

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	`CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    display_name  TEXT,
    is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
    user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token_hash TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    revoked_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, token_hash)
);`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_hash_idx ON refresh_tokens (token_hash);`,
	`CREATE TABLE IF NOT EXISTS starred_items (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL,
    bucket_name TEXT NOT NULL,
    file_name   TEXT NOT NULL,
    item_type   TEXT NOT NULL CHECK (item_type IN ('file', 'folder')),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT starred_items_owner_ref_key UNIQUE (user_id, bucket_name, file_name)
);`,
	`CREATE INDEX IF NOT EXISTS starred_items_ref_idx ON starred_items (bucket_name, file_name);`,
	`CREATE TABLE IF NOT EXISTS shared_items (
    id            UUID PRIMARY KEY,
    bucket_name   TEXT NOT NULL,
    file_name     TEXT NOT NULL,
    shared_by_id  TEXT NOT NULL,
    shared_to_id  TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT shared_items_tuple_key UNIQUE (bucket_name, file_name, shared_by_id, shared_to_id)
);`,
	`CREATE INDEX IF NOT EXISTS shared_items_to_idx ON shared_items (shared_to_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS shared_items_by_idx ON shared_items (shared_by_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS usage_stats (
    user_id             TEXT PRIMARY KEY,
    total_storage_bytes BIGINT NOT NULL DEFAULT 0,
    used_storage_bytes  BIGINT NOT NULL DEFAULT 0,
    files_uploaded      BIGINT NOT NULL DEFAULT 0,
    files_downloaded    BIGINT NOT NULL DEFAULT 0,
    files_deleted       BIGINT NOT NULL DEFAULT 0,
    images_bytes        BIGINT NOT NULL DEFAULT 0,
    documents_bytes     BIGINT NOT NULL DEFAULT 0,
    videos_bytes        BIGINT NOT NULL DEFAULT 0,
    other_bytes         BIGINT NOT NULL DEFAULT 0,
    activity_by_weekday BIGINT[] NOT NULL DEFAULT '{0,0,0,0,0,0,0}',
    last_active         TIMESTAMPTZ,
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`,
}

// EnsureSchema creates the tables backing users, the star/share overlay and usage stats.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, schemaTimeout)
	defer cancel()

	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
