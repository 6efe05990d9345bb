package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrExtractionRejected is returned when the model answers with an error object
// instead of invoice fields, e.g. for a document that is not an invoice.
var ErrExtractionRejected = errors.New("extraction rejected by model")

// ExtractedInvoice is the structured content of an invoice as read by the model.
type ExtractedInvoice struct {
	Supplier      *ExtractedSupplier `json:"supplier"`
	BilledTo      *ExtractedBilledTo `json:"billed_to"`
	InvoiceNumber string             `json:"invoice_number"`
	// IssueDate is YYYY-MM-DD.
	IssueDate   string          `json:"issue_date"`
	Description string          `json:"description"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	// Categories are expense labels, most relevant first.
	Categories   []string           `json:"categories"`
	Installments []ExtractedDueDate `json:"installments"`
}

// ExtractedSupplier is the issuer of the invoice.
type ExtractedSupplier struct {
	LegalName string `json:"legal_name"`
	TradeName string `json:"trade_name"`
	TaxID     string `json:"tax_id"`
}

// ExtractedBilledTo is the party the invoice is billed to.
type ExtractedBilledTo struct {
	Name  string `json:"name"`
	TaxID string `json:"tax_id"`
}

// ExtractedDueDate is one installment due date.
type ExtractedDueDate struct {
	DueDate string `json:"due_date"`
}

// PrimaryCategory returns the first suggested category, or fallback when there is none.
func (e *ExtractedInvoice) PrimaryCategory(fallback string) string {
	for _, c := range e.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return fallback
}

// ParseExtraction decodes a model answer into an ExtractedInvoice.
// Markdown code fences around the JSON are tolerated.
func ParseExtraction(raw string) (*ExtractedInvoice, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, errors.New("empty extraction response")
	}

	var rejected struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &rejected); err == nil && rejected.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrExtractionRejected, rejected.Error)
	}

	invoice := &ExtractedInvoice{}
	if err := json.Unmarshal([]byte(body), invoice); err != nil {
		return nil, fmt.Errorf("failed to decode extraction: %w", err)
	}
	return invoice, nil
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// Drop the language tag line.
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
