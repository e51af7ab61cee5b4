package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/application"
	"github.com/FreddieTree/manual-review-sub000/contexts/assertion-curation/review-consensus-service/ports"
)

// OutboxRelay publishes persisted outbox records to the event bus.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce publishes a bounded batch of pending outbox rows and marks each row
// sent only after publish succeeds. It stops on the first failure so the next
// cycle retries the remaining rows.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPendingOutbox(ctx, limit)
	if err != nil {
		logger.Error("review outbox list failed",
			"event", "review_outbox_list_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		logger.Debug("review outbox relay found no pending rows",
			"event", "review_outbox_relay_noop",
			"module", application.ModuleName,
			"layer", "worker",
			"batch_size", limit,
		)
		return nil
	}

	for _, row := range pending {
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			logger.Error("review outbox decode failed",
				"event", "review_outbox_decode_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
		topic := event.EventType
		if topic == "" {
			topic = row.EventType
		}
		if err := r.Publisher.Publish(ctx, topic, event); err != nil {
			logger.Error("review outbox publish failed",
				"event", "review_outbox_publish_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			return err
		}
		now := time.Now().UTC()
		if r.Clock != nil {
			now = r.Clock.Now().UTC()
		}
		if err := r.Outbox.MarkOutboxSent(ctx, row.OutboxID, now); err != nil {
			logger.Error("review outbox mark sent failed",
				"event", "review_outbox_mark_sent_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"outbox_id", row.OutboxID,
				"error", err.Error(),
			)
			return err
		}
	}

	logger.Info("review outbox relay cycle completed",
		"event", "review_outbox_relay_completed",
		"module", application.ModuleName,
		"layer", "worker",
		"published_count", len(pending),
	)
	return nil
}
