package locks

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ebalan/recordlock/metrics"
)

// StartSweeper starts a background goroutine that periodically removes
// expired leases from the store and refreshes the active-lease gauge.
// Reads already treat expired leases as free, so the sweep itself only
// bounds memory and table growth. The gauge comes from Store.Count, not
// from per-operation counting: claims are re-entrant and releases
// idempotent, so incrementing per operation would drift.
func StartSweeper(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) {
	if store == nil {
		logger.Error("Cannot start lease sweeper: store is nil")
		return
	}

	go func() {
		logger.Info("Starting lease sweeper",
			zap.Duration("interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				sweepOnce(store, logger)
			case <-ctx.Done():
				logger.Info("Lease sweeper shutting down")
				return
			}
		}
	}()
}

func sweepOnce(store Store, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := store.Sweep(ctx)
	if err != nil {
		logger.Error("Failed to sweep expired leases", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("Swept expired leases", zap.Int("count", removed))
	}

	count, err := store.Count(ctx)
	if err != nil {
		logger.Error("Failed to count live leases", zap.Error(err))
		return
	}
	metrics.ActiveLeases.Set(float64(count))
}
