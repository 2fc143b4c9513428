package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/samims/notifier/internal/config"
	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/push"
	"github.com/samims/notifier/internal/storage"
	"github.com/samims/notifier/pkg/tracing"
)

const (
	reasonInactive = "subscription inactive"
	reasonReaped   = "claim expired before delivery finished"
)

var errClaimLost = errors.New("claim no longer held")

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetry
	outcomeFailed
	outcomeLost
)

// DeliveryWorker drains the delivery queue.
type DeliveryWorker interface {
	// RunOnce claims up to limit due entries and delivers them concurrently.
	RunOnce(ctx context.Context, limit int) (model.Summary, error)
	// Reap releases entries whose claim outlived the claim timeout.
	Reap(ctx context.Context, limit int) (model.Summary, error)
}

type deliveryWorker struct {
	store  storage.Store
	sender push.Sender
	events EventPublisher
	cfg    config.WorkerConfig
	now    Clock
	tracer *tracing.Tracer
	logger *slog.Logger
}

func NewDeliveryWorker(
	store storage.Store,
	sender push.Sender,
	events EventPublisher,
	cfg config.WorkerConfig,
	logger *slog.Logger,
) DeliveryWorker {
	if events == nil {
		events = NoopPublisher()
	}
	return &deliveryWorker{
		store:  store,
		sender: sender,
		events: events,
		cfg:    cfg,
		now:    systemClock,
		tracer: tracing.NewTracer("notifier/delivery"),
		logger: logger.With("layer", "service", "component", "delivery_worker"),
	}
}

func (w *deliveryWorker) RunOnce(ctx context.Context, limit int) (model.Summary, error) {
	if limit <= 0 {
		limit = w.cfg.BatchSize
	}

	entries, err := w.store.ClaimPending(ctx, w.now(), limit)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to claim queue entries", "error", err)
		return model.Summary{}, err
	}
	if len(entries) == 0 {
		return model.Summary{}, nil
	}
	w.logger.InfoContext(ctx, "processing claimed entries", "count", len(entries))

	var (
		mu      sync.Mutex
		summary = model.Summary{Processed: len(entries)}
		errs    []error
	)

	eg, egCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, max(1, w.cfg.Limit))

	for _, entry := range entries {
		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()

			out, err := w.deliver(egCtx, entry)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			switch out {
			case outcomeSent:
				summary.Succeeded++
			case outcomeRetry:
				summary.Retried++
			case outcomeFailed:
				summary.Failed++
			case outcomeLost:
				summary.Skipped++
			}
			// per-entry failures never cancel the rest of the batch
			return nil
		})
	}
	_ = eg.Wait()

	w.logger.InfoContext(ctx, "delivery cycle finished",
		"processed", summary.Processed, "sent", summary.Succeeded, "retried", summary.Retried,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, errors.Join(errs...)
}

// deliver performs one attempt for a claimed entry and records its transition.
// A store error leaves the entry in sending for the reaper.
func (w *deliveryWorker) deliver(ctx context.Context, e model.QueueEntry) (outcome, error) {
	ctx, span := w.tracer.StartClientSpan(ctx, "delivery.attempt",
		attribute.String(tracing.AttrQueueEntryID, e.ID),
		attribute.String(tracing.AttrNotificationID, e.NotificationID),
		attribute.String(tracing.AttrDeviceID, e.DeviceID),
		attribute.Int(tracing.AttrAttempt, e.Attempts+1),
	)
	defer span.End()

	if e.ClaimToken == nil {
		return outcomeLost, nil
	}
	token := *e.ClaimToken

	sub, err := w.subscriptionFor(ctx, e, token)
	if errors.Is(err, errClaimLost) {
		return w.lost(ctx, e, model.QueueSending)
	}
	if err != nil {
		w.tracer.RecordError(span, err)
		return outcomeLost, err
	}
	if sub == nil {
		return w.fail(ctx, e, token, e.Attempts, reasonInactive)
	}

	n, err := w.store.GetNotification(ctx, e.NotificationID)
	if err != nil {
		w.tracer.RecordError(span, err)
		return outcomeLost, err
	}

	start := time.Now()
	sendErr := w.sender.Send(ctx, *sub, push.NewPayload(n))
	elapsed := time.Since(start).Seconds()

	switch {
	case sendErr == nil:
		metrics.DeliveryDuration.WithLabelValues("sent").Observe(elapsed)
		return w.markSent(ctx, e, token)

	case errors.Is(sendErr, push.ErrEndpointGone):
		metrics.DeliveryDuration.WithLabelValues("gone").Observe(elapsed)
		w.tracer.RecordError(span, sendErr)
		if _, err := w.store.DeactivateSubscription(ctx, sub.ID); err != nil {
			return outcomeLost, err
		}
		w.logger.InfoContext(ctx, "endpoint gone, subscription deactivated",
			"subscription_id", sub.ID, "user_id", sub.UserID, "device_id", sub.DeviceID)
		// permanent errors do not consume retry budget
		return w.fail(ctx, e, token, e.Attempts, sendErr.Error())

	case errors.Is(sendErr, push.ErrPayloadRejected):
		metrics.DeliveryDuration.WithLabelValues("rejected").Observe(elapsed)
		w.tracer.RecordError(span, sendErr)
		return w.fail(ctx, e, token, e.Attempts+1, sendErr.Error())

	default:
		metrics.DeliveryDuration.WithLabelValues("error").Observe(elapsed)
		w.tracer.RecordError(span, sendErr)
		attempts := e.Attempts + 1
		if attempts >= e.MaxAttempts {
			return w.fail(ctx, e, token, attempts, sendErr.Error())
		}
		return w.retry(ctx, e, token, attempts, w.now(), sendErr.Error())
	}
}

// subscriptionFor returns the subscription to send to, or nil when the device
// has no active subscription. An entry whose row was replaced by a newer
// registration of the same device is rebound to it.
func (w *deliveryWorker) subscriptionFor(ctx context.Context, e model.QueueEntry, token string) (*model.Subscription, error) {
	sub, err := w.store.GetSubscription(ctx, e.SubscriptionID)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, err
	}
	if sub != nil && sub.Active {
		return sub, nil
	}

	current, err := w.store.GetActiveSubscription(ctx, e.UserID, e.DeviceID)
	if appErr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ok, err := w.store.RebindSubscription(ctx, e.ID, token, current.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errClaimLost
	}
	w.logger.InfoContext(ctx, "queue entry rebound to current subscription",
		"queue_entry_id", e.ID, "device_id", e.DeviceID, "subscription_id", current.ID)
	return current, nil
}

func (w *deliveryWorker) markSent(ctx context.Context, e model.QueueEntry, token string) (outcome, error) {
	now := w.now()
	ok, err := w.store.MarkSent(ctx, e.ID, token, now)
	if err != nil {
		return outcomeLost, err
	}
	if !ok {
		return w.lost(ctx, e, model.QueueSent)
	}
	if err := w.store.MarkRecipientDelivered(ctx, e.NotificationID, e.UserID, now); err != nil {
		w.logger.ErrorContext(ctx, "failed to mark recipient delivered",
			"notification_id", e.NotificationID, "user_id", e.UserID, "error", err)
	}
	w.record(ctx, e, model.QueueSent, e.Attempts+1, "", now)
	return outcomeSent, nil
}

func (w *deliveryWorker) retry(ctx context.Context, e model.QueueEntry, token string, attempts int, now time.Time, reason string) (outcome, error) {
	next := now.Add(Backoff(attempts, w.cfg.RetryBaseDelay, w.cfg.RetryMaxDelay))
	ok, err := w.store.ScheduleRetry(ctx, e.ID, token, attempts, now, next, reason)
	if err != nil {
		return outcomeLost, err
	}
	if !ok {
		return w.lost(ctx, e, model.QueuePending)
	}
	w.logger.WarnContext(ctx, "delivery attempt failed, retry scheduled",
		"queue_entry_id", e.ID, "attempts", attempts, "next_retry_at", next, "error", reason)
	w.record(ctx, e, model.QueueRetrying, attempts, reason, now)
	return outcomeRetry, nil
}

func (w *deliveryWorker) fail(ctx context.Context, e model.QueueEntry, token string, attempts int, reason string) (outcome, error) {
	now := w.now()
	ok, err := w.store.MarkFailed(ctx, e.ID, token, attempts, now, reason)
	if err != nil {
		return outcomeLost, err
	}
	if !ok {
		return w.lost(ctx, e, model.QueueFailed)
	}
	w.logger.WarnContext(ctx, "delivery failed permanently",
		"queue_entry_id", e.ID, "notification_id", e.NotificationID, "device_id", e.DeviceID,
		"attempts", attempts, "error", reason)
	w.record(ctx, e, model.QueueFailed, attempts, reason, now)
	return outcomeFailed, nil
}

// lost handles a transition rejected by the claim fence: the entry was
// reaped and possibly re-claimed while this attempt was in flight.
func (w *deliveryWorker) lost(ctx context.Context, e model.QueueEntry, target model.QueueStatus) (outcome, error) {
	w.logger.WarnContext(ctx, "queue transition lost, claim no longer held",
		"queue_entry_id", e.ID, "target_status", target)
	metrics.QueueTransitions.WithLabelValues("lost").Inc()
	return outcomeLost, nil
}

func (w *deliveryWorker) record(ctx context.Context, e model.QueueEntry, status model.QueueStatus, attempts int, reason string, at time.Time) {
	metrics.QueueTransitions.WithLabelValues(string(status)).Inc()
	w.events.PublishDelivery(ctx, model.DeliveryEvent{
		QueueEntryID:   e.ID,
		NotificationID: e.NotificationID,
		UserID:         e.UserID,
		DeviceID:       e.DeviceID,
		Status:         status,
		Attempts:       attempts,
		Error:          reason,
		Timestamp:      at,
	})
}

func (w *deliveryWorker) Reap(ctx context.Context, limit int) (model.Summary, error) {
	if limit <= 0 {
		limit = w.cfg.BatchSize
	}
	now := w.now()
	stale, err := w.store.ListStaleClaims(ctx, now.Add(-w.cfg.ClaimTimeout), limit)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to list stale claims", "error", err)
		return model.Summary{}, err
	}

	summary := model.Summary{Processed: len(stale)}
	var errs []error
	for _, e := range stale {
		if e.ClaimToken == nil {
			summary.Skipped++
			continue
		}
		// the interrupted attempt counts against the budget
		attempts := e.Attempts + 1
		var out outcome
		if attempts >= e.MaxAttempts {
			out, err = w.fail(ctx, e, *e.ClaimToken, attempts, reasonReaped)
		} else {
			out, err = w.retry(ctx, e, *e.ClaimToken, attempts, now, reasonReaped)
		}
		if err != nil {
			errs = append(errs, err)
		}
		switch out {
		case outcomeRetry:
			summary.Retried++
		case outcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	if len(stale) > 0 {
		w.logger.WarnContext(ctx, "reaped stale claims",
			"count", len(stale), "requeued", summary.Retried, "failed", summary.Failed)
	}
	return summary, errors.Join(errs...)
}

// Backoff returns base * 2^(attempts-1), capped at maxDelay.
func Backoff(attempts int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 1; i < attempts && d < maxDelay; i++ {
		d *= 2
	}
	return min(d, maxDelay)
}
