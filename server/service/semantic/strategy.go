package semantic

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hrygo/nfintake/plugin/ai"
	"github.com/hrygo/nfintake/store"
)

// WriteFunc stores the vector of one movement.
type WriteFunc func(ctx context.Context, id int32, vector []float32) error

// BackfillStrategy embeds the descriptions of movements and writes their vectors.
// It returns how many vectors were written. Rows are written independently, so a
// failure leaves earlier rows in place.
type BackfillStrategy interface {
	Backfill(ctx context.Context, movements []*store.Movement, embedder ai.EmbeddingService, write WriteFunc) (int, error)
}

// SequentialStrategy embeds one movement at a time.
type SequentialStrategy struct{}

func (SequentialStrategy) Backfill(ctx context.Context, movements []*store.Movement, embedder ai.EmbeddingService, write WriteFunc) (int, error) {
	written := 0
	for _, m := range movements {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		if err := embedOne(ctx, m, embedder, write); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// BatchStrategy sends descriptions to the provider in groups of Size.
type BatchStrategy struct {
	Size int
}

func (s BatchStrategy) Backfill(ctx context.Context, movements []*store.Movement, embedder ai.EmbeddingService, write WriteFunc) (int, error) {
	size := s.Size
	if size <= 0 {
		size = 16
	}

	written := 0
	for i := 0; i < len(movements); i += size {
		end := min(i+size, len(movements))
		batch := movements[i:end]

		texts := make([]string, len(batch))
		for j, m := range batch {
			texts[j] = embeddingText(m)
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		for j, m := range batch {
			if err := write(ctx, m.ID, vectors[j]); err != nil {
				return written, fmt.Errorf("failed to store embedding of movement %d: %w", m.ID, err)
			}
			written++
		}
	}
	return written, nil
}

// RateLimitedStrategy embeds rows concurrently while keeping provider calls
// under Limiter. Concurrency defaults to 1.
type RateLimitedStrategy struct {
	Limiter     *rate.Limiter
	Concurrency int
}

func (s RateLimitedStrategy) Backfill(ctx context.Context, movements []*store.Movement, embedder ai.EmbeddingService, write WriteFunc) (int, error) {
	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Concurrency, 1))

	for _, m := range movements {
		g.Go(func() error {
			if s.Limiter != nil {
				if err := s.Limiter.Wait(gctx); err != nil {
					return err
				}
			}
			if err := embedOne(gctx, m, embedder, write); err != nil {
				return err
			}
			written.Add(1)
			return nil
		})
	}

	err := g.Wait()
	return int(written.Load()), err
}

func embedOne(ctx context.Context, m *store.Movement, embedder ai.EmbeddingService, write WriteFunc) error {
	vector, err := embedder.Embed(ctx, embeddingText(m))
	if err != nil {
		return fmt.Errorf("%w: movement %d: %w", ErrEmbedding, m.ID, err)
	}
	if err := write(ctx, m.ID, vector); err != nil {
		return fmt.Errorf("failed to store embedding of movement %d: %w", m.ID, err)
	}
	return nil
}

// embeddingText is the text indexed for a movement. Movements without a
// description fall back to their invoice number.
func embeddingText(m *store.Movement) string {
	if text := strings.TrimSpace(m.Description); text != "" {
		return text
	}
	return "invoice " + m.InvoiceNumber
}
