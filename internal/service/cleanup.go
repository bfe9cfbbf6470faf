package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/logging"
	"github.com/darmiel/kartei/internal/metrics"
)

// BlobGCTaskName is the name the cleanup task is registered under.
const BlobGCTaskName = "blob-gc"

// DefaultGCBatchSize is used when no batch size is configured.
const DefaultGCBatchSize = 100

// BlobGC returns a task that retries queued blob deletions.
// Blobs that are already gone count as deleted.
func BlobGC(
	queue core.DeletionQueue,
	blobs core.BlobStore,
	m *metrics.Metrics,
	batchSize int,
) func(ctx context.Context, logger logging.InternalLogger) error {
	if batchSize <= 0 {
		batchSize = DefaultGCBatchSize
	}
	return func(ctx context.Context, logger logging.InternalLogger) error {
		pending, err := queue.List(ctx, batchSize)
		if err != nil {
			return fmt.Errorf("listing pending deletions: %w", err)
		}
		if len(pending) == 0 {
			logger.Info("no pending blob deletions")
			m.SetPendingDeletions(0)
			return nil
		}
		logger.Info("retrying %d pending blob deletion(s)", len(pending))

		var deleted, failed int
		for _, p := range pending {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := blobs.Delete(ctx, p.Ref)
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				failed++
				m.BlobDeletion(false)
				logger.Warn("deleting '%s' failed (attempt %d): %v", p.Ref, p.Attempts+1, err)
				if err := queue.Failed(ctx, p.Ref); err != nil {
					logger.Error("recording failed attempt for '%s': %v", p.Ref, err)
				}
				continue
			}
			m.BlobDeletion(true)
			if err := queue.Done(ctx, p.Ref); err != nil {
				logger.Error("removing '%s' from deletion queue: %v", p.Ref, err)
				continue
			}
			deleted++
		}

		if rest, err := queue.List(ctx, 0); err == nil {
			m.SetPendingDeletions(len(rest))
		}
		logger.Info("deleted %d blob(s), %d still pending retry", deleted, failed)
		if failed > 0 {
			return fmt.Errorf("%d blob deletion(s) failed", failed)
		}
		return nil
	}
}
