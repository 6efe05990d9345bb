package v1

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hrygo/nfintake/plugin/ai"
	apperrors "github.com/hrygo/nfintake/server/internal/errors"
	"github.com/hrygo/nfintake/server/internal/observability"
	"github.com/hrygo/nfintake/server/service/invoice"
	"github.com/hrygo/nfintake/store"
)

const pdfMIMEType = "application/pdf"

// VerifyInvoiceRequest is the body of POST /api/v1/invoices/verify.
type VerifyInvoiceRequest struct {
	Invoice *ai.ExtractedInvoice `json:"invoice"`
}

// PersistMovementRequest is the body of POST /api/v1/movements.
type PersistMovementRequest struct {
	Invoice      *ai.ExtractedInvoice  `json:"invoice"`
	Verification *invoice.Verification `json:"verification"`
}

// PersistMovementResponse is returned once a movement is recorded.
type PersistMovementResponse struct {
	Status   string                 `json:"status"`
	Movement *invoice.PersistResult `json:"movement"`
}

// MovementResponse is a recorded movement with its installments.
type MovementResponse struct {
	ID            int32                  `json:"id"`
	Kind          string                 `json:"kind"`
	InvoiceNumber string                 `json:"invoice_number"`
	IssueDate     string                 `json:"issue_date"`
	Description   string                 `json:"description"`
	TotalAmount   decimal.Decimal        `json:"total_amount"`
	SupplierID    int32                  `json:"supplier_id"`
	BilledToID    int32                  `json:"billed_to_id"`
	CategoryIDs   []int32                `json:"category_ids"`
	CreatedAt     time.Time              `json:"created_at"`
	Installments  []*InstallmentResponse `json:"installments"`
}

// InstallmentResponse is one payment slice of a movement.
type InstallmentResponse struct {
	ID      int32           `json:"id"`
	Label   string          `json:"label"`
	DueDate string          `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// ExtractInvoice reads a PDF invoice and returns its structured fields.
// POST /api/v1/invoices/extract
func (s *APIV1Service) ExtractInvoice(c echo.Context, rc *observability.RequestContext) error {
	if s.Extractor == nil {
		return apperrors.Upstream(apperrors.StageExtract, "invoice extraction is not configured", nil)
	}

	fileHeader, err := c.FormFile("pdf_file")
	if err != nil {
		return apperrors.Validation(apperrors.StageExtract, "pdf_file is required")
	}
	if fileHeader.Size > s.Profile.MaxUploadBytes {
		return apperrors.Validation(apperrors.StageExtract,
			fmt.Sprintf("file too large: maximum %d bytes", s.Profile.MaxUploadBytes))
	}
	if mediaType, _, err := mime.ParseMediaType(fileHeader.Header.Get(echo.HeaderContentType)); err != nil || mediaType != pdfMIMEType {
		return apperrors.Validation(apperrors.StageExtract, "only PDF files are accepted")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return apperrors.Validation(apperrors.StageExtract, "failed to read uploaded file")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, s.Profile.MaxUploadBytes+1))
	if err != nil {
		return apperrors.Validation(apperrors.StageExtract, "failed to read uploaded file")
	}
	if int64(len(content)) > s.Profile.MaxUploadBytes {
		return apperrors.Validation(apperrors.StageExtract,
			fmt.Sprintf("file too large: maximum %d bytes", s.Profile.MaxUploadBytes))
	}
	if !isPDF(content) {
		return apperrors.Validation(apperrors.StageExtract, "uploaded file is not a PDF")
	}

	ctx := c.Request().Context()
	if err := s.extractSemaphore.Acquire(ctx, 1); err != nil {
		return apperrors.Upstream(apperrors.StageExtract, "request cancelled", err)
	}
	defer s.extractSemaphore.Release(1)

	extracted, err := s.Extractor.Extract(ctx, content)
	if err != nil {
		if errors.Is(err, ai.ErrExtractionRejected) {
			return apperrors.Upstream(apperrors.StageExtract, "the document could not be read as an invoice", err)
		}
		return apperrors.Upstream(apperrors.StageExtract, "failed to extract invoice", err)
	}

	rc.Info("invoice extracted")
	return c.JSON(http.StatusOK, extracted)
}

// VerifyInvoice looks up the supplier, billed-to party and category of an extracted invoice.
// POST /api/v1/invoices/verify
func (s *APIV1Service) VerifyInvoice(c echo.Context, _ *observability.RequestContext) error {
	var req VerifyInvoiceRequest
	if err := c.Bind(&req); err != nil || req.Invoice == nil {
		return apperrors.Validation(apperrors.StageVerify, "invalid request body: invoice is required")
	}

	verification, err := s.InvoiceService.Verify(c.Request().Context(), req.Invoice)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, verification)
}

// PersistMovement records a verified invoice as a payable movement.
// POST /api/v1/movements
func (s *APIV1Service) PersistMovement(c echo.Context, rc *observability.RequestContext) error {
	var req PersistMovementRequest
	if err := c.Bind(&req); err != nil || req.Invoice == nil || req.Verification == nil {
		return apperrors.Validation(apperrors.StagePersist, "invalid request body: invoice and verification are required")
	}

	result, err := s.InvoiceService.PersistMovement(c.Request().Context(), req.Invoice, req.Verification)
	if err != nil {
		return err
	}

	rc.Info("movement persisted")
	return c.JSON(http.StatusCreated, PersistMovementResponse{
		Status:   "persisted",
		Movement: result,
	})
}

// GetMovement returns a recorded movement with its installments.
// GET /api/v1/movements/:id
func (s *APIV1Service) GetMovement(c echo.Context, _ *observability.RequestContext) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return apperrors.Validation(apperrors.StagePersist, "invalid movement id")
	}

	movement, err := s.InvoiceService.GetMovement(c.Request().Context(), int32(id))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convertMovementFromStore(movement))
}

func convertMovementFromStore(m *store.Movement) *MovementResponse {
	installments := make([]*InstallmentResponse, 0, len(m.Installments))
	for _, in := range m.Installments {
		installments = append(installments, &InstallmentResponse{
			ID:      in.ID,
			Label:   in.Label,
			DueDate: in.DueDate.Format(store.DateLayout),
			Amount:  in.Amount,
			Balance: in.Balance,
		})
	}
	return &MovementResponse{
		ID:            m.ID,
		Kind:          m.Kind,
		InvoiceNumber: m.InvoiceNumber,
		IssueDate:     m.IssueDate.Format(store.DateLayout),
		Description:   m.Description,
		TotalAmount:   m.TotalAmount,
		SupplierID:    m.SupplierID,
		BilledToID:    m.BilledToID,
		CategoryIDs:   m.CategoryIDs,
		CreatedAt:     time.Unix(m.CreatedTs, 0).UTC(),
		Installments:  installments,
	}
}

// isPDF sniffs the content so a renamed file with a PDF content type is still rejected.
func isPDF(content []byte) bool {
	return http.DetectContentType(content) == pdfMIMEType && bytes.HasPrefix(content, []byte("%PDF-"))
}
