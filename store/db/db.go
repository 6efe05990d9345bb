package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/nfintake/internal/profile"
	"github.com/hrygo/nfintake/store"
	"github.com/hrygo/nfintake/store/db/postgres"
	"github.com/hrygo/nfintake/store/db/sqlite"
)

// ============================================================================
// DATABASE SUPPORT POLICY
// ============================================================================
// PostgreSQL: production, with pgvector similarity search.
// SQLite: development and demo, with in-process cosine search.
// ============================================================================

// NewDBDriver creates new db driver based on profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
