package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/storage"
	"github.com/samims/notifier/pkg/tracing"
)

// QueueBuilder creates the delivery queue entries of one recipient.
type QueueBuilder interface {
	EnqueueForRecipient(ctx context.Context, notificationID, userID string) (int, error)
}

type queueBuilder struct {
	store       storage.Store
	maxAttempts int
	now         Clock
	tracer      *tracing.Tracer
	logger      *slog.Logger
}

func NewQueueBuilder(store storage.Store, maxAttempts int, logger *slog.Logger) QueueBuilder {
	return &queueBuilder{
		store:       store,
		maxAttempts: maxAttempts,
		now:         systemClock,
		tracer:      tracing.NewTracer("notifier/queue"),
		logger:      logger.With("layer", "service", "component", "queue_builder"),
	}
}

// EnqueueForRecipient queues one entry per distinct active device of the
// user. Devices already queued for the notification are skipped, so the call
// is safe to repeat. A user without devices yields zero entries.
func (b *queueBuilder) EnqueueForRecipient(ctx context.Context, notificationID, userID string) (int, error) {
	ctx, span := b.tracer.StartInternalSpan(ctx, "queue.enqueue_recipient",
		attribute.String(tracing.AttrNotificationID, notificationID),
		attribute.String(tracing.AttrUserID, userID),
	)
	defer span.End()

	subs, err := b.store.ListActiveSubscriptions(ctx, userID)
	if err != nil {
		b.tracer.RecordError(span, err)
		return 0, fmt.Errorf("load subscriptions of %s: %w", userID, err)
	}

	devices, dropped := dedupeByDevice(subs)
	if dropped > 0 {
		metrics.DuplicateSubscriptions.Add(float64(dropped))
		b.logger.WarnContext(ctx, "duplicate active subscriptions for one device, keeping most recently seen",
			"user_id", userID, "notification_id", notificationID, "duplicates", dropped)
	}

	created := 0
	now := b.now()
	for _, sub := range devices {
		inserted, err := b.store.InsertQueueEntry(ctx, &model.QueueEntry{
			ID:             uuid.NewString(),
			NotificationID: notificationID,
			UserID:         userID,
			DeviceID:       sub.DeviceID,
			SubscriptionID: sub.ID,
			Status:         model.QueuePending,
			MaxAttempts:    b.maxAttempts,
			CreatedAt:      now,
		})
		if err != nil {
			b.tracer.RecordError(span, err)
			return created, err
		}
		if inserted {
			created++
		}
	}

	metrics.QueueEntriesCreated.Add(float64(created))
	return created, nil
}

// dedupeByDevice keeps the most recently seen subscription per device id,
// preserving first-seen order of devices.
func dedupeByDevice(subs []model.Subscription) ([]model.Subscription, int) {
	index := make(map[string]int, len(subs))
	var out []model.Subscription
	for _, s := range subs {
		i, ok := index[s.DeviceID]
		if !ok {
			index[s.DeviceID] = len(out)
			out = append(out, s)
			continue
		}
		if s.LastSeenAt.After(out[i].LastSeenAt) {
			out[i] = s
		}
	}
	return out, len(subs) - len(out)
}
