package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/nfintake/internal/profile"
	"github.com/hrygo/nfintake/store"
)

func setupTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewFromDB(db, &profile.Profile{Driver: "postgres"}), mock
}

func testGraph() *store.MovementGraph {
	return &store.MovementGraph{
		Supplier: &store.Party{
			Document:  "11.222.333/0001-44",
			Name:      "ACME LTDA",
			TradeName: "ACME",
			Role:      store.PartyRoleSupplier,
		},
		BilledTo:            &store.Party{ID: 9},
		CategoryDescription: "MAINTENANCE",
		Movement: &store.Movement{
			InvoiceNumber: "NF-1",
			IssueDate:     time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Description:   "Pump repair",
			TotalAmount:   decimal.RequireFromString("100.00"),
		},
		Installments: []*store.Installment{
			{Label: "1/2", DueDate: time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("50.00"), Balance: decimal.RequireFromString("50.00")},
			{Label: "2/2", DueDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("50.00"), Balance: decimal.RequireFromString("50.00")},
		},
	}
}

func TestListParties_ByDocument(t *testing.T) {
	d, mock := setupTestDB(t)
	ctx := context.Background()
	document := "11.222.333/0001-44"

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, document, name, trade_name, role, status, created_ts FROM party WHERE 1 = 1 AND document = $1`,
	)).
		WithArgs(document).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document", "name", "trade_name", "role", "status", "created_ts"}).
			AddRow(7, document, "ACME LTDA", "ACME", "SUPPLIER", "ACTIVE", 1700000000))

	list, err := d.ListParties(ctx, &store.FindParty{Document: &document})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(7), list[0].ID)
	assert.Equal(t, store.PartyRoleSupplier, list[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListParties_NotFound(t *testing.T) {
	d, mock := setupTestDB(t)
	document := "missing"

	mock.ExpectQuery(regexp.QuoteMeta(`FROM party WHERE 1 = 1 AND document = $1`)).
		WithArgs(document).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document", "name", "trade_name", "role", "status", "created_ts"}))

	list, err := d.ListParties(context.Background(), &store.FindParty{Document: &document})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMovementGraph_Success(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO party`)).
		WithArgs("11.222.333/0001-44", "ACME LTDA", "ACME", "SUPPLIER", "ACTIVE", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO category`)).
		WithArgs("MAINTENANCE", "EXPENSE", "ACTIVE", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO movement (`)).
		WithArgs("PAYABLE", "NF-1", "2024-01-15", "Pump repair", sqlmock.AnyArg(), 7, 9, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO movement_category`)).
		WithArgs(42, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO installment`)).
		WithArgs(42, "1/2", "2024-02-15", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(100))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO installment`)).
		WithArgs(42, "2/2", "2024-03-15", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectCommit()

	movement, err := d.CreateMovementGraph(context.Background(), testGraph())
	require.NoError(t, err)
	assert.Equal(t, int32(42), movement.ID)
	assert.Equal(t, store.MovementKindPayable, movement.Kind)
	assert.Equal(t, int32(7), movement.SupplierID)
	assert.Equal(t, int32(9), movement.BilledToID)
	assert.Equal(t, []int32{3}, movement.CategoryIDs)
	require.Len(t, movement.Installments, 2)
	assert.Equal(t, int32(101), movement.Installments[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMovementGraph_ConflictRollsBack(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO party`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO category`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO movement (`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "movement_supplier_invoice_key"})
	mock.ExpectRollback()

	_, err := d.CreateMovementGraph(context.Background(), testGraph())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.ErrorIs(t, err, store.ErrDuplicateInvoice)
	assert.NotErrorIs(t, err, store.ErrDuplicateParty)
	assert.Contains(t, err.Error(), "movement_supplier_invoice_key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMovementGraph_DuplicatePartyIsConflict(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO party`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "party_document_key"})
	mock.ExpectRollback()

	_, err := d.CreateMovementGraph(context.Background(), testGraph())
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.ErrorIs(t, err, store.ErrDuplicateParty)
	assert.NotErrorIs(t, err, store.ErrDuplicateInvoice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMovementGraph_OtherErrorIsNotConflict(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO party`)).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "movement_supplier_id_fkey"})
	mock.ExpectRollback()

	_, err := d.CreateMovementGraph(context.Background(), testGraph())
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureVectorSchema_AddsMissingColumn(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE EXTENSION IF NOT EXISTS vector`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT atttypmod FROM pg_attribute`)).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}))
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE movement ADD COLUMN IF NOT EXISTS description_embedding vector(768)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS movement_description_embedding_idx`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, d.EnsureVectorSchema(context.Background(), 768))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureVectorSchema_ExistingColumnIsKept(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE EXTENSION IF NOT EXISTS vector`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT atttypmod FROM pg_attribute`)).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(768))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS movement_description_embedding_idx`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// Any DROP or ALTER would be an unexpected statement and fail the mock.
	require.NoError(t, d.EnsureVectorSchema(context.Background(), 768))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureVectorSchema_DimensionMismatch(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE EXTENSION IF NOT EXISTS vector`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT atttypmod FROM pg_attribute`)).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(1536))

	err := d.EnsureVectorSchema(context.Background(), 768)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1536")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureVectorSchema_InvalidDimensions(t *testing.T) {
	d, mock := setupTestDB(t)

	assert.Error(t, d.EnsureVectorSchema(context.Background(), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMovementsWithoutEmbedding(t *testing.T) {
	d, mock := setupTestDB(t)
	issued := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE description_embedding IS NULL`)).
		WithArgs(200).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "invoice_number", "issue_date", "description", "total_amount", "supplier_id", "billed_to_id", "created_ts"}).
			AddRow(1, "PAYABLE", "NF-1", issued, "Pump repair", "100.00", 7, 9, 1700000000))

	list, err := d.ListMovementsWithoutEmbedding(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Pump repair", list[0].Description)
	assert.True(t, decimal.RequireFromString("100").Equal(list[0].TotalAmount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMovementCategoryIDs(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT category_id FROM movement_category WHERE movement_id = $1`)).
		WithArgs(int32(5)).
		WillReturnRows(sqlmock.NewRows([]string{"category_id"}).AddRow(2).AddRow(4))

	ids, err := d.ListMovementCategoryIDs(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 4}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMovementsWithoutEmbedding_ZeroLimit(t *testing.T) {
	d, mock := setupTestDB(t)

	list, err := d.ListMovementsWithoutEmbedding(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMovementEmbedding(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE movement SET description_embedding = $1 WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, d.UpdateMovementEmbedding(context.Background(), 5, []float32{0.1, 0.2}))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE movement SET description_embedding = $1 WHERE id = $2`)).
		WithArgs(sqlmock.AnyArg(), 6).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Error(t, d.UpdateMovementEmbedding(context.Background(), 6, []float32{0.1, 0.2}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchMovementsByVector(t *testing.T) {
	d, mock := setupTestDB(t)
	issued := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`1 - (description_embedding <=> $1) AS similarity`)).
		WithArgs(sqlmock.AnyArg(), 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "invoice_number", "issue_date", "description", "total_amount", "supplier_id", "billed_to_id", "created_ts", "similarity"}).
			AddRow(1, "PAYABLE", "NF-1", issued, "Pump repair", "100.00", 7, 9, 1700000000, 0.91).
			AddRow(2, "PAYABLE", "NF-2", issued, "Office chairs", "40.00", 7, 9, 1700000000, 0.42))

	results, err := d.SearchMovementsByVector(context.Background(), &store.MovementVectorSearch{Vector: []float32{0.1, 0.2}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "NF-1", results[0].Movement.InvoiceNumber)
	assert.InDelta(t, 0.91, results[0].Similarity, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsInitialized(t *testing.T) {
	d, mock := setupTestDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := d.IsInitialized(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WillReturnError(sql.ErrConnDone)
	_, err = d.IsInitialized(context.Background())
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
