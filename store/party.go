package store

import "context"

// PartyRole is the side a party takes on an invoice.
type PartyRole string

const (
	PartyRoleSupplier PartyRole = "SUPPLIER"
	PartyRoleBilledTo PartyRole = "BILLED_TO"
)

const (
	StatusActive = "ACTIVE"
)

// Party is a supplier or billed-to counterparty, unique by tax document number.
type Party struct {
	ID        int32
	Document  string
	Name      string
	TradeName string
	Role      PartyRole
	Status    string
	CreatedTs int64
}

// FindParty is the find condition for parties.
type FindParty struct {
	ID       *int32
	Document *string
}

// ListParties lists parties.
func (s *Store) ListParties(ctx context.Context, find *FindParty) ([]*Party, error) {
	return s.driver.ListParties(ctx, find)
}

// GetPartyByDocument returns the party with the exact document number, or nil if none exists.
func (s *Store) GetPartyByDocument(ctx context.Context, document string) (*Party, error) {
	list, err := s.driver.ListParties(ctx, &FindParty{Document: &document})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}
