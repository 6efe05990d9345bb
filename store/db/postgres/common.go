package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// uniqueViolation is the SQLSTATE of unique_violation.
const uniqueViolation = "23505"

type scanner interface {
	Scan(dest ...any) error
}

// placeholder returns a positional placeholder for PostgreSQL.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n positional placeholders.
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
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.Wrapf(conflict, "%s: %s", msg, pqErr.Constraint)
	}
	return errors.Wrap(err, msg)
}
