package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"
	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/nfintake/internal/profile"
	"github.com/hrygo/nfintake/store"
)

// ============================================================================
// SQLITE SUPPORT (Development / Demo)
// ============================================================================
// SQLite keeps the full movement graph but has no vector extension:
// - Embeddings are stored as little-endian float32 BLOBs
// - Similarity search is a brute-force cosine scan in Go
// ============================================================================

type DB struct {
	db      *sql.DB
	profile *profile.Profile

	// vectorDims is the embedding dimension set by EnsureVectorSchema; zero until then.
	vectorDims atomic.Int32
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", slog.String("error", err.Error()))
		return nil, errors.Wrap(err, "failed to open database")
	}

	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	return &DB{
		db:      db,
		profile: profile,
	}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'movement')").Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
