package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/nfintake/internal/profile"
	"github.com/hrygo/nfintake/plugin/ai"
	apperrors "github.com/hrygo/nfintake/server/internal/errors"
	"github.com/hrygo/nfintake/server/internal/observability"
	"github.com/hrygo/nfintake/server/service/invoice"
	"github.com/hrygo/nfintake/server/service/semantic"
	storetest "github.com/hrygo/nfintake/store/test"
)

var samplePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

type fakeExtractor struct {
	invoice *ai.ExtractedInvoice
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(_ context.Context, pdf []byte) (*ai.ExtractedInvoice, error) {
	f.calls++
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		return nil, errors.New("not a pdf")
	}
	return f.invoice, f.err
}

type fakeQueryService struct {
	answer   *semantic.Answer
	err      error
	question string
}

func (f *fakeQueryService) Answer(_ context.Context, question string) (*semantic.Answer, error) {
	f.question = question
	return f.answer, f.err
}

type testServer struct {
	echo      *echo.Echo
	service   *APIV1Service
	extractor *fakeExtractor
	query     *fakeQueryService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", DSN: "unused", MaxUploadBytes: 1024}

	extractor := &fakeExtractor{}
	query := &fakeQueryService{}
	svc := NewAPIV1Service(p, invoice.NewService(storetest.NewTestingStore(ctx, t)), extractor, query)
	svc.Metrics = observability.NewMetrics(100)

	e := echo.New()
	svc.RegisterRoutes(e)
	return &testServer{echo: e, service: svc, extractor: extractor, query: query}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) upload(t *testing.T, field, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="invoice.pdf"`, field))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/extract", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func newTestingInvoice() *ai.ExtractedInvoice {
	document := uuid.NewString()
	return &ai.ExtractedInvoice{
		Supplier:      &ai.ExtractedSupplier{LegalName: "ACME INDUSTRIA LTDA", TradeName: "ACME", TaxID: document},
		BilledTo:      &ai.ExtractedBilledTo{Name: "FAZENDA BOA VISTA", TaxID: "billed-" + document},
		InvoiceNumber: "000123",
		IssueDate:     "2024-01-15",
		Description:   "Irrigation pump repair",
		TotalAmount:   decimal.RequireFromString("100.00"),
		Categories:    []string{"MAINTENANCE"},
		Installments:  []ai.ExtractedDueDate{{DueDate: "2024-02-15"}, {DueDate: "2024-03-15"}},
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}

func TestExtractInvoice(t *testing.T) {
	ts := newTestServer(t)
	ts.extractor.invoice = newTestingInvoice()

	rec := ts.upload(t, "pdf_file", "application/pdf", samplePDF)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got ai.ExtractedInvoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "000123", got.InvoiceNumber)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("100")))
}

func TestExtractInvoice_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		field       string
		contentType string
		content     []byte
		wantStatus  int
	}{
		{name: "missing field", field: "file", contentType: "application/pdf", content: samplePDF, wantStatus: http.StatusBadRequest},
		{name: "declared type", field: "pdf_file", contentType: "image/png", content: samplePDF, wantStatus: http.StatusBadRequest},
		{name: "sniffed bytes", field: "pdf_file", contentType: "application/pdf", content: []byte("just some text"), wantStatus: http.StatusBadRequest},
		{name: "too large", field: "pdf_file", contentType: "application/pdf", content: append(samplePDF, bytes.Repeat([]byte("x"), 2048)...), wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.upload(t, tt.field, tt.contentType, tt.content)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "extract", decodeError(t, rec).Stage)
			assert.Zero(t, ts.extractor.calls)
		})
	}
}

func TestExtractInvoice_ProviderErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.extractor.err = fmt.Errorf("%w: not an invoice", ai.ErrExtractionRejected)

	rec := ts.upload(t, "pdf_file", "application/pdf", samplePDF)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "extract", resp.Stage)
	assert.Contains(t, resp.Error, "could not be read as an invoice")

	ts.service.Extractor = nil
	rec = ts.upload(t, "pdf_file", "application/pdf", samplePDF)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestVerifyPersistAndGetMovement(t *testing.T) {
	ts := newTestServer(t)
	inv := newTestingInvoice()

	rec := ts.do(t, http.MethodPost, "/api/v1/invoices/verify", VerifyInvoiceRequest{Invoice: inv})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verification invoice.Verification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verification))
	assert.False(t, verification.Supplier.Exists)
	assert.False(t, verification.BilledTo.Exists)
	assert.False(t, verification.Category.Exists)

	rec = ts.do(t, http.MethodPost, "/api/v1/movements", PersistMovementRequest{Invoice: inv, Verification: &verification})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var persisted PersistMovementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &persisted))
	assert.Equal(t, "persisted", persisted.Status)
	assert.Equal(t, 2, persisted.Movement.InstallmentsCreated)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/movements/%d", persisted.Movement.MovementID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var movement MovementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &movement))
	assert.Equal(t, "000123", movement.InvoiceNumber)
	assert.Equal(t, "2024-01-15", movement.IssueDate)
	require.Len(t, movement.CategoryIDs, 1)
	require.Len(t, movement.Installments, 2)
	assert.Equal(t, "1/2", movement.Installments[0].Label)
	assert.True(t, movement.Installments[0].Amount.Equal(decimal.RequireFromString("50")))

	// The same invoice again is a conflict.
	rec = ts.do(t, http.MethodPost, "/api/v1/invoices/verify", VerifyInvoiceRequest{Invoice: inv})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verification))
	assert.True(t, verification.Supplier.Exists)

	rec = ts.do(t, http.MethodPost, "/api/v1/movements", PersistMovementRequest{Invoice: inv, Verification: &verification})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "persist", decodeError(t, rec).Stage)

	snapshot := ts.service.Metrics.Snapshot()
	assert.EqualValues(t, 1, snapshot.StageFailures["persist"])
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		method, path string
		body         any
		wantStatus   int
	}{
		{http.MethodPost, "/api/v1/invoices/verify", map[string]any{}, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/movements", map[string]any{"invoice": newTestingInvoice()}, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/movements/abc", nil, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/movements/99999", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := ts.do(t, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.wantStatus, rec.Code, tt.path)
		assert.NotEmpty(t, decodeError(t, rec).Error)
	}
}

func TestSemanticQuery(t *testing.T) {
	ts := newTestServer(t)
	ts.query.answer = &semantic.Answer{
		Answer: "One pump repair was recorded.",
		Facts:  []semantic.Fact{{ID: 1, InvoiceNumber: "000123", Amount: "100.00", Date: "2024-01-15", Similarity: 0.912}},
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/semantic/query", SemanticQueryRequest{Question: "pumps?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pumps?", ts.query.question)
	body := rec.Body.String()
	assert.Contains(t, body, `"answer":"One pump repair was recorded."`)
	assert.Contains(t, body, `"similarity":0.912`)
}

func TestSemanticQuery_StageErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.query.err = apperrors.Storage(apperrors.StageVectorSearch, "semantic search failed", errors.New("timeout"))

	rec := ts.do(t, http.MethodPost, "/api/v1/semantic/query", SemanticQueryRequest{Question: "pumps?"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "db_vector_search", resp.Stage)
	assert.False(t, strings.Contains(resp.Error, "timeout"), "causes stay in the logs")

	ts.service.QueryService = nil
	rec = ts.do(t, http.MethodPost, "/api/v1/semantic/query", SemanticQueryRequest{Question: "pumps?"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGetMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/v1/movements/abc", nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/system/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"get_movement"`)
	assert.Contains(t, rec.Body.String(), `"request_failed":1`)
}
