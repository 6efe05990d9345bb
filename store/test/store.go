// Package test builds migrated stores for package tests.
package test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/hrygo/nfintake/internal/profile"
	"github.com/hrygo/nfintake/store"
	"github.com/hrygo/nfintake/store/db"
)

// NewTestingStore returns a migrated store closed on test cleanup.
// It uses a private in-memory SQLite database unless POSTGRES_TEST_DSN is set.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()

	p := getTestingProfile(t)
	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	s := store.New(driver, p)
	t.Cleanup(func() { s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return s
}

func getTestingProfile(t *testing.T) *profile.Profile {
	t.Helper()

	if dsn := os.Getenv("POSTGRES_TEST_DSN"); dsn != "" {
		return &profile.Profile{
			Mode:   "dev",
			Driver: "postgres",
			DSN:    dsn,
		}
	}

	// Shared-cache names keep each test database isolated while the single pooled
	// connection keeps it alive.
	return &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
}
