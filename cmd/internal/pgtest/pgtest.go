// Package pgtest connects integration tests to the Postgres named by
// TAVERN_DATABASE_URL. Without it the tests skip; outside CI an unreachable
// server skips them too.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tavern/cmd/identity/ids"
	"tavern/cmd/internal/pgschema"
)

const EnvDatabaseURL = "TAVERN_DATABASE_URL"

// Open returns a pool closed at test cleanup, or skips the test.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if dsn == "" {
		t.Skipf("integration test skipped: %s is not set", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgtest: connect: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if unreachable(err) && os.Getenv("CI") == "" {
			t.Skipf("integration test skipped: postgres unreachable: %v", err)
		}
		t.Fatalf("pgtest: ping: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func unreachable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host")
}

// Schema applies the tavern DDL to a fresh schema named after prefix and
// drops it when the test ends.
func Schema(t *testing.T, pool *pgxpool.Pool, prefix string) string {
	t.Helper()

	schema := prefix + "_" + strings.ToLower(NewULID(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := pgschema.Apply(ctx, pool, schema); err != nil {
		t.Fatalf("pgtest: apply schema %s: %v", schema, err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE"); err != nil {
			t.Logf("pgtest: drop schema %s: %v", schema, err)
		}
	})
	return schema
}

func NewULID(t *testing.T) string {
	t.Helper()
	id, err := ids.NewULID(time.Time{})
	if err != nil {
		t.Fatalf("pgtest: ulid: %v", err)
	}
	return id
}
