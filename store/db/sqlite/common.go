package sqlite

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hrygo/nfintake/store"
)

type scanner interface {
	Scan(dest ...any) error
}

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

// convertError maps unique violations to conflict, which must wrap store.ErrConflict,
// and wraps everything else.
func convertError(err error, conflict error, msg string) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return errors.Wrapf(conflict, "%s: %s", msg, sqliteErr.Error())
	}
	return errors.Wrap(err, msg)
}

// parseDate parses a calendar date stored as TEXT.
func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(store.DateLayout, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid stored date %q", value)
	}
	return t, nil
}
