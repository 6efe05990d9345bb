package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	MovementKindPayable = "PAYABLE"

	// DateLayout is the calendar-date format used for issue and due dates.
	DateLayout = "2006-01-02"
)

// ErrConflict is returned when a write violates a uniqueness constraint,
// e.g. the same invoice number recorded twice for one supplier.
var ErrConflict = errors.New("unique constraint violation")

// ErrDuplicateInvoice and ErrDuplicateParty narrow ErrConflict to the violated key.
// errors.Is(err, ErrConflict) holds for both.
var (
	ErrDuplicateInvoice = fmt.Errorf("%w: invoice number already recorded for supplier", ErrConflict)
	ErrDuplicateParty   = fmt.Errorf("%w: party document already registered", ErrConflict)
)

// Movement is an accounts-payable record.
type Movement struct {
	ID            int32
	Kind          string
	InvoiceNumber string
	IssueDate     time.Time
	Description   string
	TotalAmount   decimal.Decimal
	SupplierID    int32
	BilledToID    int32
	CreatedTs     int64

	CategoryIDs  []int32
	Installments []*Installment
}

// Installment is one scheduled payment slice of a movement.
type Installment struct {
	ID         int32
	MovementID int32
	// Label is the sequence label "k/N".
	Label   string
	DueDate time.Time
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

// MovementGraph describes every row written when a movement is recorded.
// A party with a non-zero ID is reused; otherwise it is inserted.
// The category is looked up by description and inserted if absent.
type MovementGraph struct {
	Supplier            *Party
	BilledTo            *Party
	CategoryDescription string
	Movement            *Movement
	Installments        []*Installment
}

// FindMovement is the find condition for movements.
type FindMovement struct {
	ID            *int32
	SupplierID    *int32
	InvoiceNumber *string
	Limit         *int
}

// FindInstallment is the find condition for installments.
type FindInstallment struct {
	MovementID *int32
}

// Validate checks the graph before it reaches the driver.
func (g *MovementGraph) Validate() error {
	if g == nil || g.Movement == nil {
		return errors.New("movement is required")
	}
	if g.Supplier == nil || g.BilledTo == nil {
		return errors.New("supplier and billed-to parties are required")
	}
	if g.CategoryDescription == "" {
		return errors.New("category description is required")
	}
	if len(g.Installments) == 0 {
		return errors.New("at least one installment is required")
	}
	return nil
}

// CreateMovementGraph writes parties, category, movement and installments in one transaction.
// Either every row commits or none does.
func (s *Store) CreateMovementGraph(ctx context.Context, graph *MovementGraph) (*Movement, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return s.driver.CreateMovementGraph(ctx, graph)
}

// ListMovements lists movements with their categories but without their installments.
func (s *Store) ListMovements(ctx context.Context, find *FindMovement) ([]*Movement, error) {
	list, err := s.driver.ListMovements(ctx, find)
	if err != nil {
		return nil, err
	}
	for _, movement := range list {
		categoryIDs, err := s.driver.ListMovementCategoryIDs(ctx, movement.ID)
		if err != nil {
			return nil, err
		}
		movement.CategoryIDs = categoryIDs
	}
	return list, nil
}

// GetMovement returns the movement with its categories and installments, or nil if it does not exist.
func (s *Store) GetMovement(ctx context.Context, id int32) (*Movement, error) {
	list, err := s.ListMovements(ctx, &FindMovement{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	movement := list[0]
	installments, err := s.driver.ListInstallments(ctx, &FindInstallment{MovementID: &id})
	if err != nil {
		return nil, err
	}
	movement.Installments = installments
	return movement, nil
}

// ListInstallments lists installments ordered by due date.
func (s *Store) ListInstallments(ctx context.Context, find *FindInstallment) ([]*Installment, error) {
	return s.driver.ListInstallments(ctx, find)
}
