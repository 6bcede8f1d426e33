// Package dbtest provides throwaway PostgreSQL schemas for repository tests.
//
// Tests run against TEST_DATABASE_URL when it is set. With
// RECORDS_DOCKER_TESTS=1 a postgres:16-alpine container is started once per
// test binary instead. Otherwise the calling test is skipped.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clinicrecords/records/internal/platform/db"
	"github.com/clinicrecords/records/migrations"
)

var (
	baseOnce sync.Once
	baseURL  string
	baseErr  error
)

// Pool returns a pool bound to a freshly migrated schema that is dropped when
// the test finishes.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := resolveBaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect admin pool: %v", err)
	}

	schema := "records_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	if err := db.CreateSchema(ctx, admin, schema, migrations.FS); err != nil {
		admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: url, Schema: schema, MaxConns: 4})
	if err != nil {
		admin.Close()
		t.Fatalf("open schema pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := db.DropSchema(context.Background(), admin, schema); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		admin.Close()
	})
	return pool
}

func resolveBaseURL(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		return url
	}
	if os.Getenv("RECORDS_DOCKER_TESTS") != "1" {
		t.Skip("set TEST_DATABASE_URL or RECORDS_DOCKER_TESTS=1 to run database tests")
	}

	baseOnce.Do(func() {
		baseURL, baseErr = startContainer(context.Background())
	})
	if baseErr != nil {
		t.Fatalf("start postgres container: %v", baseErr)
	}
	return baseURL
}

// startContainer leaves cleanup of the container to the testcontainers reaper.
func startContainer(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "records",
			"POSTGRES_PASSWORD": "records",
			"POSTGRES_DB":       "records_test",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithDeadline(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("container port: %w", err)
	}

	return fmt.Sprintf("postgres://records:records@%s:%s/records_test?sslmode=disable", host, port.Port()), nil
}
