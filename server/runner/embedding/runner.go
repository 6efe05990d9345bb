package embedding

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/nfintake/server/internal/observability"
)

// Indexer is the part of the semantic indexer the runner drives.
type Indexer interface {
	EnsureVectorSchema(ctx context.Context) error
	BackfillMissing(ctx context.Context, limit int) (int, error)
}

// Runner keeps movement vectors filled in the background so semantic
// queries rarely have to embed pending rows themselves.
type Runner struct {
	indexer   Indexer
	interval  time.Duration
	batchSize int
}

// NewRunner creates a vector embedding runner.
func NewRunner(indexer Indexer) *Runner {
	return &Runner{
		indexer:   indexer,
		interval:  2 * time.Minute,
		batchSize: 32,
	}
}

// Run starts the background task.
func (r *Runner) Run(ctx context.Context) {
	// Process once on startup
	r.processPending(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.processPending(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce processes pending movements once and returns how many vectors were written.
func (r *Runner) RunOnce(ctx context.Context) int {
	return r.processPending(ctx)
}

func (r *Runner) processPending(ctx context.Context) int {
	rc := observability.NewRequestContext(slog.Default(), "embedding_backfill")
	ctx = observability.WithRequestContext(ctx, rc)

	if err := r.indexer.EnsureVectorSchema(ctx); err != nil {
		rc.Error("failed to prepare vector column", err)
		return 0
	}

	total := 0
	for {
		select {
		case <-ctx.Done():
			rc.Info("embedding processing cancelled", slog.Int("processed", total))
			return total
		default:
		}

		written, err := r.indexer.BackfillMissing(ctx, r.batchSize)
		total += written
		if err != nil {
			rc.Error("failed to process batch", err, slog.Int("processed", total))
			return total
		}
		// A short batch means nothing else is pending.
		if written < r.batchSize {
			return total
		}
	}
}
