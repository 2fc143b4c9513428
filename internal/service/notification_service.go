package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/storage"
	"github.com/samims/notifier/pkg/tracing"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

// NotificationService is the authoring and inbox entry point.
type NotificationService interface {
	// Publish creates the notification and fans it out. It returns once the
	// notification and its recipients are stored; delivery happens later.
	Publish(ctx context.Context, n *model.Notification) (*model.Notification, error)
	CreateDraft(ctx context.Context, n *model.Notification) (*model.Notification, error)
	PublishDraft(ctx context.Context, id string) (*model.Notification, error)
	// DiscardDraft deletes a notification that was never published.
	DiscardDraft(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*NotificationDetail, error)
	// PublishOnce publishes n at most once per event key. The bool reports
	// whether this call fired the event.
	PublishOnce(ctx context.Context, ev model.ReminderEvent, n *model.Notification) (*model.Notification, bool, error)
	// Requeue reruns the queue builder for every recipient.
	Requeue(ctx context.Context, id string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.InboxItem, error)
}

// NotificationDetail is a notification with its pipeline state.
type NotificationDetail struct {
	*model.Notification
	Recipients []model.Recipient `json:"recipients"`
	Deliveries []DeliveryView    `json:"deliveries"`
}

// DeliveryView reports a queue entry with its effective status.
type DeliveryView struct {
	model.QueueEntry
	Status model.QueueStatus `json:"status"`
}

type notificationService struct {
	store    storage.Store
	resolver RecipientResolver
	fanout   FanOutEngine
	now      Clock
	tracer   *tracing.Tracer
	logger   *slog.Logger
}

func NewNotificationService(
	store storage.Store,
	resolver RecipientResolver,
	fanout FanOutEngine,
	logger *slog.Logger,
) NotificationService {
	return &notificationService{
		store:    store,
		resolver: resolver,
		fanout:   fanout,
		now:      systemClock,
		tracer:   tracing.NewTracer("notifier/notifications"),
		logger:   logger.With("layer", "service", "component", "notification_service"),
	}
}

func (s *notificationService) Publish(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	draft, err := s.CreateDraft(ctx, n)
	if err != nil {
		return nil, err
	}
	return s.publish(ctx, draft, "api")
}

func (s *notificationService) CreateDraft(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	if err := s.prepare(n); err != nil {
		return nil, err
	}
	n.Status = model.StatusDraft
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to save draft", "error", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "draft created", "notification_id", n.ID, "created_by", n.CreatedBy)
	return n, nil
}

func (s *notificationService) PublishDraft(ctx context.Context, id string) (*model.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status != model.StatusDraft {
		return nil, appErr.ErrNotDraft
	}
	return s.publish(ctx, n, "api")
}

func (s *notificationService) DiscardDraft(ctx context.Context, id string) error {
	if err := s.store.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "draft discarded", "notification_id", id)
	return nil
}

// publish resolves recipients before touching the draft: a failed lookup
// leaves the notification in draft with nothing fanned out.
func (s *notificationService) publish(ctx context.Context, n *model.Notification, source string) (*model.Notification, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "notification.publish",
		attribute.String(tracing.AttrNotificationID, n.ID))
	defer span.End()

	users, err := s.resolver.Resolve(ctx, n.Target)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.ErrorContext(ctx, "publish aborted, notification stays draft", "notification_id", n.ID, "error", err)
		return nil, fmt.Errorf("notification %s stays draft: %w", n.ID, err)
	}

	var created []string
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		ok, err := tx.MarkPublished(ctx, n.ID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return appErr.ErrNotDraft
		}
		created, err = s.fanout.FanOutTx(ctx, tx, n.ID, users)
		return err
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, err
	}

	s.afterPublish(ctx, n.ID, created, source)
	return s.store.GetNotification(ctx, n.ID)
}

func (s *notificationService) PublishOnce(ctx context.Context, ev model.ReminderEvent, n *model.Notification) (*model.Notification, bool, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "notification.publish_once",
		attribute.String(tracing.AttrEventKey, ev.Key))
	defer span.End()

	if strings.TrimSpace(ev.Key) == "" {
		return nil, false, appErr.NewInvalid("event key is required")
	}
	if err := s.prepare(n); err != nil {
		return nil, false, err
	}

	users, err := s.resolver.Resolve(ctx, n.Target)
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, false, err
	}

	var fired bool
	var created []string
	err = s.store.InTx(ctx, func(tx storage.Store) error {
		now := s.now()
		inserted, err := tx.InsertReminderLog(ctx, &model.ReminderLog{
			EventKey: ev.Key,
			Kind:     ev.Kind,
			FiredAt:  now,
			EventAt:  ev.At.UTC(),
		})
		if err != nil || !inserted {
			return err
		}
		fired = true

		n.Status = model.StatusPublished
		n.PublishedAt = &now
		if err := tx.CreateNotification(ctx, n); err != nil {
			return err
		}
		if created, err = s.fanout.FanOutTx(ctx, tx, n.ID, users); err != nil {
			return err
		}
		return tx.SetReminderNotification(ctx, ev.Key, n.ID)
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		return nil, false, err
	}
	if !fired {
		s.logger.DebugContext(ctx, "event already fired", "event_key", ev.Key)
		return nil, false, nil
	}

	s.afterPublish(ctx, n.ID, created, ev.Kind)
	n.TotalRecipients = len(created)
	return n, true, nil
}

// afterPublish runs once the transaction is committed. Queue failures are
// logged, not returned: the recipients exist and Requeue repairs the rest.
func (s *notificationService) afterPublish(ctx context.Context, id string, created []string, source string) {
	metrics.NotificationsPublished.WithLabelValues(source).Inc()
	_, _ = s.fanout.Enqueue(ctx, id, created)
	s.logger.InfoContext(ctx, "notification published",
		"notification_id", id, "recipients", len(created), "source", source)
}

func (s *notificationService) Get(ctx context.Context, id string) (*NotificationDetail, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	recipients, err := s.store.ListRecipients(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListQueueEntries(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	detail := &NotificationDetail{
		Notification: n,
		Recipients:   recipients,
		Deliveries:   make([]DeliveryView, 0, len(entries)),
	}
	if detail.Recipients == nil {
		detail.Recipients = []model.Recipient{}
	}
	for _, e := range entries {
		detail.Deliveries = append(detail.Deliveries, DeliveryView{QueueEntry: e, Status: e.EffectiveStatus(now)})
	}
	return detail, nil
}

func (s *notificationService) Requeue(ctx context.Context, id string) (int, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return 0, err
	}
	if n.Status != model.StatusPublished {
		return 0, appErr.NewInvalid("notification %s is not published", id)
	}
	recipients, err := s.store.ListRecipients(ctx, id)
	if err != nil {
		return 0, err
	}

	users := make([]string, 0, len(recipients))
	for _, r := range recipients {
		users = append(users, r.UserID)
	}
	total, err := s.fanout.Enqueue(ctx, id, users)
	if err != nil {
		return total, err
	}
	s.logger.InfoContext(ctx, "notification requeued", "notification_id", id, "entries_created", total)
	return total, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.store.InTx(ctx, func(tx storage.Store) error {
		changed, err := tx.MarkRecipientRead(ctx, id, userID, s.now())
		if err != nil {
			return err
		}
		if !changed {
			// already read is fine; a missing recipient is not
			_, err := tx.GetRecipient(ctx, id, userID)
			return err
		}
		return tx.AddReadCount(ctx, id, 1)
	})
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count := 0
	err := s.store.InTx(ctx, func(tx storage.Store) error {
		ids, err := tx.UnreadNotificationIDs(ctx, userID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, id := range ids {
			changed, err := tx.MarkRecipientRead(ctx, id, userID, now)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			if err := tx.AddReadCount(ctx, id, 1); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *notificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.InboxItem, error) {
	if limit <= 0 {
		limit = defaultInboxLimit
	}
	limit = min(limit, maxInboxLimit)
	offset = max(offset, 0)

	items, err := s.store.ListInbox(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.InboxItem{}
	}
	return items, nil
}

// prepare validates n and fills the server-side fields of a new notification.
func (s *notificationService) prepare(n *model.Notification) error {
	if n == nil {
		return appErr.NewInvalid("notification cannot be nil")
	}
	n.Title = strings.TrimSpace(n.Title)
	n.Body = strings.TrimSpace(n.Body)
	if n.Title == "" || n.Body == "" {
		return appErr.NewInvalid("title and body are required")
	}
	if n.CreatedBy == "" {
		return appErr.NewInvalid("created_by is required")
	}
	if n.Category == "" {
		n.Category = "general"
	}
	if n.Priority == "" {
		n.Priority = model.PriorityNormal
	}
	if !n.Priority.Valid() {
		return appErr.NewInvalid("unknown priority %q", n.Priority)
	}
	if err := n.Target.Validate(); err != nil {
		return appErr.NewInvalid("%v", err)
	}

	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	n.PublishedAt = nil
	n.TotalRecipients = 0
	n.ReadCount = 0
	return nil
}
