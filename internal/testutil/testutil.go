// Package testutil provides testing helpers for the city weather pipeline.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/citypulse/weather-pipeline/internal/migrate"
)

// SetupTestDB opens a connection to the test Postgres database and applies the
// embedded migrations. The test is skipped when no database is reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	host := envOr("TEST_DB_HOST", "localhost")
	port := envOr("TEST_DB_PORT", "5432")
	user := envOr("TEST_DB_USER", "citypulse")
	pass := envOr("TEST_DB_PASSWORD", "citypulse")
	name := envOr("TEST_DB_NAME", "citypulse_test")

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		user, pass, net.JoinHostPort(host, port), name)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		t.Skipf("Postgres not available for testing at %s: %v", host, pingErr)
	}

	if migrateErr := migrate.Run(ctx, db); migrateErr != nil {
		t.Fatalf("run migrations: %v", migrateErr)
	}

	if _, cleanErr := db.ExecContext(ctx, `TRUNCATE city_jobs`); cleanErr != nil {
		t.Fatalf("clean test database: %v", cleanErr)
	}

	t.Cleanup(func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("warning: close test db: %v", cerr)
		}
	})
	return db
}

// SetupTestRedis connects to the test Redis instance and flushes the selected
// database. The test is skipped when Redis is not reachable.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := envOr("TEST_REDIS_ADDR", "localhost:6379")
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   15, // keep test data away from any local dev database
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: close test redis: %v", cerr)
		}
	})
	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
