package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyPruner removes idempotency keys older than the given window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupHandler returns the handler for
// TaskIdempotencyCleanup. A payload without a retention uses the
// configured default.
func NewIdempotencyCleanupHandler(store KeyPruner, defaultRetention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IdempotencyCleanupPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		retention := payload.Retention
		if retention <= 0 {
			retention = defaultRetention
		}
		if err := store.Cleanup(ctx, retention); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
		}
		return nil
	}
}
