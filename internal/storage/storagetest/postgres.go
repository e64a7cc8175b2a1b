// Package storagetest connects tests to a real PostgreSQL when one is configured.
package storagetest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/endesomnia/cloud-sub000/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DSNEnv names the variable holding the test database DSN.
const DSNEnv = "CLOUD_TEST_POSTGRES_DSN"

// Pool returns a pool with the schema applied, or skips the test when
// DSNEnv is unset.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skipf("%s not set; skipping PostgreSQL test", DSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := storage.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return pool
}
