package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/storage"
	"github.com/samims/notifier/pkg/tracing"
)

// FanOutEngine creates recipients of a published notification. Every
// publishing path (API, scanners, Kafka, repair) goes through it.
type FanOutEngine interface {
	FanOut(ctx context.Context, notificationID string, userIDs []string) (int, error)
	// FanOutTx creates the missing recipients inside tx and returns the users
	// it created. The caller passes them to Enqueue once tx is committed.
	FanOutTx(ctx context.Context, tx storage.Store, notificationID string, userIDs []string) ([]string, error)
	// Enqueue runs the queue builder for each user and returns the number of
	// queue entries created.
	Enqueue(ctx context.Context, notificationID string, userIDs []string) (int, error)
}

type fanOutEngine struct {
	store  storage.Store
	queue  QueueBuilder
	now    Clock
	tracer *tracing.Tracer
	logger *slog.Logger
}

func NewFanOutEngine(store storage.Store, queue QueueBuilder, logger *slog.Logger) FanOutEngine {
	return &fanOutEngine{
		store:  store,
		queue:  queue,
		now:    systemClock,
		tracer: tracing.NewTracer("notifier/fanout"),
		logger: logger.With("layer", "service", "component", "fanout"),
	}
}

// FanOut inserts one pending recipient per user that does not have one yet
// and queues deliveries for the newly created recipients only. Repeating the
// call with the same users creates nothing.
func (f *fanOutEngine) FanOut(ctx context.Context, notificationID string, userIDs []string) (int, error) {
	ctx, span := f.tracer.StartInternalSpan(ctx, "fanout",
		attribute.String(tracing.AttrNotificationID, notificationID),
		attribute.Int("fanout.users", len(userIDs)),
	)
	defer span.End()

	var created []string
	err := f.store.InTx(ctx, func(tx storage.Store) error {
		n, err := tx.GetNotification(ctx, notificationID)
		if err != nil {
			return err
		}
		if n.Status != model.StatusPublished {
			return appErr.NewInvalid("notification %s is not published", notificationID)
		}
		created, err = f.FanOutTx(ctx, tx, notificationID, userIDs)
		return err
	})
	if err != nil {
		f.tracer.RecordError(span, err)
		return 0, err
	}

	if _, err := f.Enqueue(ctx, notificationID, created); err != nil {
		f.tracer.RecordError(span, err)
		return len(created), err
	}
	return len(created), nil
}

func (f *fanOutEngine) FanOutTx(ctx context.Context, tx storage.Store, notificationID string, userIDs []string) ([]string, error) {
	created, err := createRecipients(ctx, tx, notificationID, userIDs, f.now())
	if err != nil {
		return nil, err
	}
	metrics.RecipientsCreated.Add(float64(len(created)))
	return created, nil
}

// Enqueue keeps going past failures so one bad recipient does not block the
// others. Requeue repairs whatever it could not queue.
func (f *fanOutEngine) Enqueue(ctx context.Context, notificationID string, userIDs []string) (int, error) {
	total := 0
	var errs []error
	for _, userID := range userIDs {
		n, err := f.queue.EnqueueForRecipient(ctx, notificationID, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", userID, err))
			continue
		}
		total += n
	}
	if err := errors.Join(errs...); err != nil {
		f.logger.ErrorContext(ctx, "queue building incomplete, requeue the notification to repair",
			"notification_id", notificationID, "error", err)
		return total, err
	}
	return total, nil
}

// createRecipients must run inside a transaction. It returns the user ids
// whose recipient row was created by this call and bumps total_recipients.
func createRecipients(ctx context.Context, tx storage.Store, notificationID string, userIDs []string, now time.Time) ([]string, error) {
	var created []string
	for _, userID := range uniqueIDs(userIDs) {
		inserted, err := tx.InsertRecipient(ctx, &model.Recipient{
			ID:             uuid.NewString(),
			NotificationID: notificationID,
			UserID:         userID,
			Status:         model.RecipientPending,
			CreatedAt:      now,
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			created = append(created, userID)
		}
	}
	if len(created) > 0 {
		if err := tx.AddTotalRecipients(ctx, notificationID, len(created)); err != nil {
			return nil, err
		}
	}
	return created, nil
}
