package service

import (
	"context"

	"github.com/samims/notifier/internal/model"
)

// EventPublisher receives every retry and terminal transition of a queue entry.
// Implementations must not block delivery.
type EventPublisher interface {
	PublishDelivery(ctx context.Context, ev model.DeliveryEvent)
}

type noopPublisher struct{}

func (noopPublisher) PublishDelivery(context.Context, model.DeliveryEvent) {}

// NoopPublisher is used when no event sink is configured.
func NoopPublisher() EventPublisher {
	return noopPublisher{}
}
