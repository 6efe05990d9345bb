// Package semantic answers free-text questions over recorded movements using
// vector similarity search and a text generation model.
package semantic

import (
	"context"
	"errors"
	"sync"

	"github.com/hrygo/nfintake/plugin/ai"
	"github.com/hrygo/nfintake/server/internal/observability"
	"github.com/hrygo/nfintake/store"
)

// ErrEmbedding marks failures of the embedding provider during backfill.
var ErrEmbedding = errors.New("embedding provider failed")

// Store is the interface for store operations needed by the semantic services.
type Store interface {
	EnsureVectorSchema(ctx context.Context, dimensions int) error
	ListMovementsWithoutEmbedding(ctx context.Context, limit int) ([]*store.Movement, error)
	UpdateMovementEmbedding(ctx context.Context, id int32, embedding []float32) error
	SearchMovementsByVector(ctx context.Context, opts *store.MovementVectorSearch) ([]*store.MovementWithScore, error)
}

// Indexer keeps the movement embedding column provisioned and filled.
type Indexer struct {
	store    Store
	embedder ai.EmbeddingService
	strategy BackfillStrategy

	mu     sync.Mutex
	schema bool
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithStrategy replaces the default sequential backfill.
func WithStrategy(strategy BackfillStrategy) IndexerOption {
	return func(i *Indexer) { i.strategy = strategy }
}

// NewIndexer creates an Indexer.
func NewIndexer(store Store, embedder ai.EmbeddingService, opts ...IndexerOption) *Indexer {
	i := &Indexer{
		store:    store,
		embedder: embedder,
		strategy: SequentialStrategy{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// EnsureVectorSchema provisions the embedding column once per process.
// Provisioning is create-if-absent and never drops stored vectors.
func (i *Indexer) EnsureVectorSchema(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.schema {
		return nil
	}
	if err := i.store.EnsureVectorSchema(ctx, i.embedder.Dimensions()); err != nil {
		return err
	}
	i.schema = true
	return nil
}

// BackfillMissing embeds up to limit movements that have no vector yet and
// returns how many were written. With nothing missing it writes nothing.
func (i *Indexer) BackfillMissing(ctx context.Context, limit int) (int, error) {
	movements, err := i.store.ListMovementsWithoutEmbedding(ctx, limit)
	if err != nil {
		return 0, err
	}
	if len(movements) == 0 {
		return 0, nil
	}

	written, err := i.strategy.Backfill(ctx, movements, i.embedder, i.store.UpdateMovementEmbedding)
	if written > 0 {
		observability.Logger(ctx).Info("movement embeddings backfilled", "written", written, "pending", len(movements))
	}
	return written, err
}
