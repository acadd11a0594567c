package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ClearedDeleter removes cleared reset markers older than a cutoff
// (unix milliseconds) and reports how many were removed.
type ClearedDeleter interface {
	DeleteClearedBefore(ctx context.Context, cutoff int64) (int64, error)
}

// StartClearedDocPruner removes old cleared reset markers with interval.
// Markers only exist so watching devices learn about a reset; once every
// device has long since seen it, the row is dead weight.
func StartClearedDocPruner(
	ctx context.Context,
	repo ClearedDeleter,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pruneOnce(ctx, repo, retention, log)
			}
		}
	}()
}

func pruneOnce(ctx context.Context, repo ClearedDeleter, retention time.Duration, log *zap.Logger) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	removed, err := repo.DeleteClearedBefore(ctx, cutoff)
	if err != nil {
		log.Error("failed to prune cleared documents", zap.Error(err))
		return
	}
	if removed > 0 {
		log.Info("pruned cleared documents", zap.Int64("removed", removed))
	}
}
