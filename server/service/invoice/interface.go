package invoice

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/hrygo/nfintake/plugin/ai"
	"github.com/hrygo/nfintake/store"
)

// Service verifies extracted invoices against the store and records them as payables.
type Service interface {
	// LookupParty finds a party by exact document number. Absence is a normal result.
	LookupParty(ctx context.Context, document string, role store.PartyRole) (*PartyLookup, error)

	// LookupCategory finds a category by exact, case-sensitive description.
	LookupCategory(ctx context.Context, description string) (*CategoryLookup, error)

	// Verify looks up the supplier, the billed-to party and the primary category of an invoice.
	Verify(ctx context.Context, invoice *ai.ExtractedInvoice) (*Verification, error)

	// PersistMovement records the invoice as one movement with its installments,
	// creating missing parties and category in the same transaction.
	PersistMovement(ctx context.Context, invoice *ai.ExtractedInvoice, verification *Verification) (*PersistResult, error)

	// GetMovement returns a recorded movement with its installments.
	GetMovement(ctx context.Context, id int32) (*store.Movement, error)
}

// PartyLookup is the outcome of a party lookup.
// When Exists is false only Document and Role are set.
type PartyLookup struct {
	Exists   bool            `json:"exists"`
	ID       int32           `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Status   string          `json:"status,omitempty"`
	Document string          `json:"document,omitempty"`
	Role     store.PartyRole `json:"role,omitempty"`
}

// CategoryLookup is the outcome of a category lookup.
type CategoryLookup struct {
	Exists      bool   `json:"exists"`
	ID          int32  `json:"id,omitempty"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

// Verification holds the lookups made for one invoice.
type Verification struct {
	Supplier *PartyLookup    `json:"supplier"`
	BilledTo *PartyLookup    `json:"billed_to"`
	Category *CategoryLookup `json:"category"`
}

// PersistResult describes a recorded movement.
type PersistResult struct {
	Message             string          `json:"message"`
	MovementID          int32           `json:"movement_id"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	InstallmentsCreated int             `json:"installments_created"`
}

// Store is the interface for store operations needed by the invoice service.
type Store interface {
	GetPartyByDocument(ctx context.Context, document string) (*store.Party, error)
	GetCategoryByDescription(ctx context.Context, description string) (*store.Category, error)
	CreateMovementGraph(ctx context.Context, graph *store.MovementGraph) (*store.Movement, error)
	GetMovement(ctx context.Context, id int32) (*store.Movement, error)
}
