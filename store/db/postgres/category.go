package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hrygo/nfintake/store"
	"github.com/pkg/errors"
)

func (d *DB) ListCategories(ctx context.Context, find *store.FindCategory) ([]*store.Category, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Description != nil {
		where, args = append(where, "description = "+placeholder(len(args)+1)), append(args, *find.Description)
	}

	query := `SELECT id, description, kind, status, created_ts FROM category WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list categories")
	}
	defer rows.Close()

	list := make([]*store.Category, 0)
	for rows.Next() {
		c := &store.Category{}
		if err := rows.Scan(&c.ID, &c.Description, &c.Kind, &c.Status, &c.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan category")
		}
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate categories")
	}

	return list, nil
}

// findOrCreateCategory returns the id of the category with description, inserting it if absent.
// The no-op update makes RETURNING yield the existing row on conflict.
func findOrCreateCategory(ctx context.Context, tx *sql.Tx, description string, now int64) (int32, error) {
	stmt := `INSERT INTO category (description, kind, status, created_ts)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (description) DO UPDATE SET description = EXCLUDED.description
		RETURNING id`
	var id int32
	if err := tx.QueryRowContext(ctx, stmt, description, store.CategoryKindExpense, store.StatusActive, now).Scan(&id); err != nil {
		return 0, convertError(err, store.ErrConflict, "failed to find or create category")
	}
	return id, nil
}
