package rag

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const backfillConcurrency = 4

// BackfillResult counts one Run.
type BackfillResult struct {
	Embedded int
	Failed   int
}

// Backfiller computes embeddings for excerpts that lack one. Writes are
// last-write-wins, so concurrent backfills of one excerpt are harmless.
type Backfiller struct {
	embedder Embedder
	store    Writer
	logger   *zap.Logger
}

func NewBackfiller(embedder Embedder, store Writer, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfiller{embedder: embedder, store: store, logger: logger}
}

// EmbedExcerpt embeds a single excerpt. It is a no-op when the embedder is not
// configured or the excerpt already has a vector.
func (b *Backfiller) EmbedExcerpt(ctx context.Context, e Excerpt) error {
	if b.embedder == nil || !b.embedder.IsConfigured() || e.HasEmbedding() {
		return nil
	}
	vec, err := b.embedder.Embed(ctx, e.Content)
	if err != nil {
		return fmt.Errorf("embed excerpt %s: %w", e.ID, err)
	}
	if err := b.store.SetEmbedding(ctx, e.ID, vec); err != nil {
		return err
	}
	return nil
}

// Run embeds up to batchSize excerpts of tenantID that have no vector yet.
// Individual failures are logged and counted; only listing errors and
// cancellation abort the run.
func (b *Backfiller) Run(ctx context.Context, tenantID string, batchSize int) (BackfillResult, error) {
	if b.embedder == nil || !b.embedder.IsConfigured() {
		return BackfillResult{}, fmt.Errorf("backfill: embedding provider is not configured")
	}

	pending, err := b.store.ListMissingEmbeddings(ctx, tenantID, batchSize)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("backfill: %w", err)
	}

	var embedded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)
	for _, e := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := b.EmbedExcerpt(gctx, e); err != nil {
				failed.Add(1)
				b.logger.Warn("embedding backfill failed",
					zap.String("tenant_id", tenantID),
					zap.String("excerpt_id", e.ID.String()),
					zap.Error(err))
				return nil
			}
			embedded.Add(1)
			return nil
		})
	}
	err = g.Wait()

	res := BackfillResult{Embedded: int(embedded.Load()), Failed: int(failed.Load())}
	b.logger.Info("embedding backfill finished",
		zap.String("tenant_id", tenantID),
		zap.Int("pending", len(pending)),
		zap.Int("embedded", res.Embedded),
		zap.Int("failed", res.Failed))
	return res, err
}
