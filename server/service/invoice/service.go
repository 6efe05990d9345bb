// Package invoice verifies extracted invoices and records them as accounts-payable movements.
//
// Parties and categories are matched by exact document number and description.
// Recording is a single store transaction: parties, category, movement, category link
// and installments commit together or not at all. Uniqueness is enforced by the
// database, so concurrent submissions of the same invoice surface as a conflict.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/nfintake/plugin/ai"
	apperrors "github.com/hrygo/nfintake/server/internal/errors"
	"github.com/hrygo/nfintake/server/internal/observability"
	"github.com/hrygo/nfintake/store"
)

const persistedMessage = "movement recorded"

type service struct {
	store Store
}

// NewService creates a new invoice service.
func NewService(store Store) Service {
	return &service{store: store}
}

func (s *service) LookupParty(ctx context.Context, document string, role store.PartyRole) (*PartyLookup, error) {
	document = strings.TrimSpace(document)
	if document == "" {
		return &PartyLookup{Exists: false, Document: document, Role: role}, nil
	}

	party, err := s.store.GetPartyByDocument(ctx, document)
	if err != nil {
		return nil, apperrors.Storage(apperrors.StageVerify, "failed to look up party", err)
	}
	if party == nil {
		return &PartyLookup{Exists: false, Document: document, Role: role}, nil
	}
	return &PartyLookup{
		Exists: true,
		ID:     party.ID,
		Name:   party.Name,
		Status: party.Status,
	}, nil
}

func (s *service) LookupCategory(ctx context.Context, description string) (*CategoryLookup, error) {
	category, err := s.store.GetCategoryByDescription(ctx, description)
	if err != nil {
		return nil, apperrors.Storage(apperrors.StageVerify, "failed to look up category", err)
	}
	if category == nil {
		return &CategoryLookup{Exists: false, Description: description}, nil
	}
	return &CategoryLookup{
		Exists:      true,
		ID:          category.ID,
		Description: category.Description,
		Status:      category.Status,
	}, nil
}

func (s *service) Verify(ctx context.Context, invoice *ai.ExtractedInvoice) (*Verification, error) {
	if invoice == nil || invoice.Supplier == nil || invoice.BilledTo == nil {
		return nil, apperrors.Validation(apperrors.StageVerify, "invoice data is incomplete for verification")
	}

	supplier, err := s.LookupParty(ctx, invoice.Supplier.TaxID, store.PartyRoleSupplier)
	if err != nil {
		return nil, err
	}
	billedTo, err := s.LookupParty(ctx, invoice.BilledTo.TaxID, store.PartyRoleBilledTo)
	if err != nil {
		return nil, err
	}
	category, err := s.LookupCategory(ctx, invoice.PrimaryCategory(store.DefaultCategoryDescription))
	if err != nil {
		return nil, err
	}

	return &Verification{
		Supplier: supplier,
		BilledTo: billedTo,
		Category: category,
	}, nil
}

func (s *service) PersistMovement(ctx context.Context, invoice *ai.ExtractedInvoice, verification *Verification) (*PersistResult, error) {
	if invoice == nil || verification == nil {
		return nil, apperrors.Validation(apperrors.StagePersist, "extracted data and verification results are required")
	}

	graph, err := buildGraph(invoice, verification)
	if err != nil {
		return nil, err
	}

	movement, err := s.store.CreateMovementGraph(ctx, graph)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateParty):
			observability.Logger(ctx).Warn("party registered since verification",
				"supplier_document", invoice.Supplier.TaxID,
				"billed_to_document", invoice.BilledTo.TaxID,
			)
			return nil, apperrors.Conflict(apperrors.StagePersist, "a party with this document was registered since verification; verify the invoice again", err)
		case errors.Is(err, store.ErrConflict):
			observability.Logger(ctx).Warn("invoice already recorded",
				"invoice_number", invoice.InvoiceNumber,
				"supplier_document", invoice.Supplier.TaxID,
			)
			return nil, apperrors.Conflict(apperrors.StagePersist, "this invoice was already recorded for this supplier", err)
		}
		return nil, apperrors.Storage(apperrors.StagePersist, "failed to record movement", err)
	}

	observability.Logger(ctx).Info("movement recorded",
		"movement_id", movement.ID,
		"invoice_number", movement.InvoiceNumber,
		"installments", len(movement.Installments),
	)

	return &PersistResult{
		Message:             persistedMessage,
		MovementID:          movement.ID,
		TotalAmount:         movement.TotalAmount,
		InstallmentsCreated: len(movement.Installments),
	}, nil
}

func (s *service) GetMovement(ctx context.Context, id int32) (*store.Movement, error) {
	movement, err := s.store.GetMovement(ctx, id)
	if err != nil {
		return nil, apperrors.Storage(apperrors.StagePersist, "failed to load movement", err)
	}
	if movement == nil {
		return nil, &apperrors.AppError{Code: apperrors.ErrCodeNotFound, Stage: apperrors.StagePersist, Message: fmt.Sprintf("movement %d not found", id)}
	}
	return movement, nil
}

// buildGraph validates the invoice and resolves which parties are reused or created.
func buildGraph(invoice *ai.ExtractedInvoice, verification *Verification) (*store.MovementGraph, error) {
	if invoice.Supplier == nil || invoice.BilledTo == nil {
		return nil, apperrors.Validation(apperrors.StagePersist, "supplier and billed-to data are required")
	}
	if strings.TrimSpace(invoice.InvoiceNumber) == "" {
		return nil, apperrors.Validation(apperrors.StagePersist, "invoice number is required")
	}
	issueDate, err := parseDate(invoice.IssueDate)
	if err != nil {
		return nil, apperrors.Validation(apperrors.StagePersist, "issue date must be YYYY-MM-DD")
	}
	if !invoice.TotalAmount.IsPositive() {
		return nil, apperrors.Validation(apperrors.StagePersist, "total amount must be positive")
	}
	if len(invoice.Installments) == 0 {
		return nil, apperrors.Validation(apperrors.StagePersist, "at least one installment due date is required")
	}
	dueDates := make([]time.Time, 0, len(invoice.Installments))
	for i, installment := range invoice.Installments {
		due, err := parseDate(installment.DueDate)
		if err != nil {
			return nil, apperrors.Validation(apperrors.StagePersist, fmt.Sprintf("installment %d due date must be YYYY-MM-DD", i+1))
		}
		dueDates = append(dueDates, due)
	}

	supplier, err := resolveParty(verification.Supplier, &store.Party{
		Document:  strings.TrimSpace(invoice.Supplier.TaxID),
		Name:      invoice.Supplier.LegalName,
		TradeName: invoice.Supplier.TradeName,
		Role:      store.PartyRoleSupplier,
		Status:    store.StatusActive,
	})
	if err != nil {
		return nil, err
	}
	billedTo, err := resolveParty(verification.BilledTo, &store.Party{
		Document: strings.TrimSpace(invoice.BilledTo.TaxID),
		Name:     invoice.BilledTo.Name,
		Role:     store.PartyRoleBilledTo,
		Status:   store.StatusActive,
	})
	if err != nil {
		return nil, err
	}
	// A self-billed invoice must not insert the same document twice.
	if supplier.ID == 0 && billedTo.ID == 0 && supplier.Document == billedTo.Document {
		billedTo = supplier
	}

	total := invoice.TotalAmount.Round(2)
	return &store.MovementGraph{
		Supplier:            supplier,
		BilledTo:            billedTo,
		CategoryDescription: invoice.PrimaryCategory(store.DefaultCategoryDescription),
		Movement: &store.Movement{
			Kind:          store.MovementKindPayable,
			InvoiceNumber: strings.TrimSpace(invoice.InvoiceNumber),
			IssueDate:     issueDate,
			Description:   invoice.Description,
			TotalAmount:   total,
		},
		Installments: SplitInstallments(total, dueDates),
	}, nil
}

// resolveParty reuses the verified party or returns candidate for creation.
func resolveParty(lookup *PartyLookup, candidate *store.Party) (*store.Party, error) {
	if lookup != nil && lookup.Exists && lookup.ID != 0 {
		return &store.Party{ID: lookup.ID}, nil
	}
	if candidate.Document == "" {
		return nil, apperrors.Validation(apperrors.StagePersist, fmt.Sprintf("%s tax id is required", strings.ToLower(string(candidate.Role))))
	}
	if candidate.Name == "" {
		candidate.Name = candidate.Document
	}
	return candidate, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and keeps only the calendar date.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(store.DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
