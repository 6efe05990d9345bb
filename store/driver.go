package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Party model related methods.
	ListParties(ctx context.Context, find *FindParty) ([]*Party, error)

	// Category model related methods.
	ListCategories(ctx context.Context, find *FindCategory) ([]*Category, error)

	// Movement model related methods.
	CreateMovementGraph(ctx context.Context, graph *MovementGraph) (*Movement, error)
	ListMovements(ctx context.Context, find *FindMovement) ([]*Movement, error)
	ListInstallments(ctx context.Context, find *FindInstallment) ([]*Installment, error)
	ListMovementCategoryIDs(ctx context.Context, movementID int32) ([]int32, error)

	// Movement embedding related methods.
	EnsureVectorSchema(ctx context.Context, dimensions int) error
	ListMovementsWithoutEmbedding(ctx context.Context, limit int) ([]*Movement, error)
	UpdateMovementEmbedding(ctx context.Context, id int32, embedding []float32) error
	SearchMovementsByVector(ctx context.Context, opts *MovementVectorSearch) ([]*MovementWithScore, error)
}
