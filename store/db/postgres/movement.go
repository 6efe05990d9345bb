package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/nfintake/store"
)

const movementColumns = `id, kind, invoice_number, issue_date, description, total_amount, supplier_id, billed_to_id, created_ts`

func (d *DB) CreateMovementGraph(ctx context.Context, graph *store.MovementGraph) (*store.Movement, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	supplierID, err := insertParty(ctx, tx, graph.Supplier, now)
	if err != nil {
		return nil, err
	}
	billedToID, err := insertParty(ctx, tx, graph.BilledTo, now)
	if err != nil {
		return nil, err
	}
	categoryID, err := findOrCreateCategory(ctx, tx, graph.CategoryDescription, now)
	if err != nil {
		return nil, err
	}

	movement := graph.Movement
	if movement.Kind == "" {
		movement.Kind = store.MovementKindPayable
	}
	movement.SupplierID = supplierID
	movement.BilledToID = billedToID
	movement.CreatedTs = now

	stmt := `INSERT INTO movement (kind, invoice_number, issue_date, description, total_amount, supplier_id, billed_to_id, created_ts)
		VALUES (` + placeholders(8) + `)
		RETURNING id`
	if err := tx.QueryRowContext(ctx, stmt,
		movement.Kind,
		movement.InvoiceNumber,
		movement.IssueDate.Format(store.DateLayout),
		movement.Description,
		movement.TotalAmount,
		movement.SupplierID,
		movement.BilledToID,
		movement.CreatedTs,
	).Scan(&movement.ID); err != nil {
		return nil, convertError(err, store.ErrDuplicateInvoice, "failed to create movement")
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO movement_category (movement_id, category_id) VALUES (`+placeholders(2)+`)`, movement.ID, categoryID); err != nil {
		return nil, convertError(err, store.ErrConflict, "failed to link movement category")
	}

	for _, installment := range graph.Installments {
		installment.MovementID = movement.ID
		stmt := `INSERT INTO installment (movement_id, label, due_date, amount, balance)
			VALUES (` + placeholders(5) + `)
			RETURNING id`
		if err := tx.QueryRowContext(ctx, stmt,
			installment.MovementID,
			installment.Label,
			installment.DueDate.Format(store.DateLayout),
			installment.Amount,
			installment.Balance,
		).Scan(&installment.ID); err != nil {
			return nil, convertError(err, store.ErrConflict, "failed to create installment")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit transaction")
	}

	movement.CategoryIDs = []int32{categoryID}
	movement.Installments = graph.Installments
	return movement, nil
}

func (d *DB) ListMovements(ctx context.Context, find *store.FindMovement) ([]*store.Movement, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.SupplierID != nil {
		where, args = append(where, "supplier_id = "+placeholder(len(args)+1)), append(args, *find.SupplierID)
	}
	if find.InvoiceNumber != nil {
		where, args = append(where, "invoice_number = "+placeholder(len(args)+1)), append(args, *find.InvoiceNumber)
	}

	query := `SELECT ` + movementColumns + ` FROM movement WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	if find.Limit != nil {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list movements")
	}
	defer rows.Close()

	list := make([]*store.Movement, 0)
	for rows.Next() {
		movement, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, movement)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate movements")
	}

	return list, nil
}

func (d *DB) ListInstallments(ctx context.Context, find *store.FindInstallment) ([]*store.Installment, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.MovementID != nil {
		where, args = append(where, "movement_id = "+placeholder(len(args)+1)), append(args, *find.MovementID)
	}

	query := `SELECT id, movement_id, label, due_date, amount, balance FROM installment WHERE ` + strings.Join(where, " AND ") + ` ORDER BY due_date ASC, id ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list installments")
	}
	defer rows.Close()

	list := make([]*store.Installment, 0)
	for rows.Next() {
		i := &store.Installment{}
		if err := rows.Scan(&i.ID, &i.MovementID, &i.Label, &i.DueDate, &i.Amount, &i.Balance); err != nil {
			return nil, errors.Wrap(err, "failed to scan installment")
		}
		list = append(list, i)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate installments")
	}

	return list, nil
}

func (d *DB) ListMovementCategoryIDs(ctx context.Context, movementID int32) ([]int32, error) {
	query := `SELECT category_id FROM movement_category WHERE movement_id = ` + placeholder(1) + ` ORDER BY category_id ASC`
	rows, err := d.db.QueryContext(ctx, query, movementID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list movement categories")
	}
	defer rows.Close()

	list := make([]int32, 0)
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan movement category")
		}
		list = append(list, id)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate movement categories")
	}

	return list, nil
}

func scanMovement(row scanner, extra ...any) (*store.Movement, error) {
	m := &store.Movement{}
	dest := []any{
		&m.ID,
		&m.Kind,
		&m.InvoiceNumber,
		&m.IssueDate,
		&m.Description,
		&m.TotalAmount,
		&m.SupplierID,
		&m.BilledToID,
		&m.CreatedTs,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, errors.Wrap(err, "failed to scan movement")
	}
	return m, nil
}
