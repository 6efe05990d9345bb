package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/nfintake/store"
)

func (d *DB) ListParties(ctx context.Context, find *store.FindParty) ([]*store.Party, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Document != nil {
		where, args = append(where, "document = "+placeholder(len(args)+1)), append(args, *find.Document)
	}

	query := `SELECT id, document, name, trade_name, role, status, created_ts FROM party WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list parties")
	}
	defer rows.Close()

	list := make([]*store.Party, 0)
	for rows.Next() {
		p := &store.Party{}
		if err := rows.Scan(&p.ID, &p.Document, &p.Name, &p.TradeName, &p.Role, &p.Status, &p.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan party")
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate parties")
	}

	return list, nil
}

func insertParty(ctx context.Context, tx *sql.Tx, p *store.Party, now int64) (int32, error) {
	if p.ID != 0 {
		return p.ID, nil
	}
	if p.Status == "" {
		p.Status = store.StatusActive
	}
	p.CreatedTs = now

	stmt := `INSERT INTO party (document, name, trade_name, role, status, created_ts)
		VALUES (` + placeholders(6) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt, p.Document, p.Name, p.TradeName, string(p.Role), p.Status, p.CreatedTs).Scan(&p.ID); err != nil {
		return 0, convertError(err, store.ErrDuplicateParty, "failed to create party")
	}
	return p.ID, nil
}
