package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/x-run/PipeStock/internal/analytics"
)

// ReorderSource lists products at or below their reorder point.
type ReorderSource interface {
	ReorderCandidates(ctx context.Context) ([]analytics.StockItem, error)
}

// NewReorderScanHandler returns the handler for TaskReorderScan. The
// reorder point is reporting only: the scan logs candidates, it never
// writes to the ledger.
func NewReorderScanHandler(source ReorderSource, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		candidates, err := source.ReorderCandidates(ctx)
		if err != nil {
			return err
		}
		if logger == nil {
			return nil
		}
		for _, c := range candidates {
			logger.Warn("reorder point reached",
				slog.String("product_id", c.ProductID.String()),
				slog.String("code", c.Code),
				slog.Int64("available", c.Available),
				slog.Int("reorder_point", c.ReorderPoint),
			)
		}
		logger.Info("reorder scan finished", slog.Int("candidates", len(candidates)))
		return nil
	}
}
