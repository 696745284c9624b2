package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-grc/aegis/internal/webhooks"
)

// assignmentRetention is how long expired assignments stay queryable before
// the sweep removes them.
const assignmentRetention = 30 * 24 * time.Hour

// WebhookDeliverHandler returns the handler for TaskWebhookDeliver. A payload
// that fails to decode is dropped; delivery failures are retried by the queue.
func WebhookDeliverHandler(deliverer *webhooks.Deliverer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var delivery webhooks.Delivery
		if err := json.Unmarshal(t.Payload(), &delivery); err != nil {
			logger.Error("webhook delivery payload malformed", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := deliverer.Deliver(ctx, delivery); err != nil {
			logger.Warn("webhook delivery failed",
				slog.String("endpoint", delivery.EndpointID.String()),
				slog.String("event", delivery.Event),
				slog.Any("error", err))
			return err
		}
		return nil
	}
}

// AssignmentSweeper is the purge contract the sweep task needs.
type AssignmentSweeper interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// AssignmentSweepHandler returns the handler for TaskAssignmentSweep.
func AssignmentSweepHandler(sweeper AssignmentSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		removed, err := sweeper.PurgeExpired(ctx, assignmentRetention)
		if err != nil {
			return err
		}
		if removed > 0 {
			logger.Info("expired role assignments purged", slog.Int64("removed", removed))
		}
		return nil
	}
}
