package storage

import (
	"context"
	"time"

	"github.com/samims/notifier/internal/model"
)

// NotificationStorage persists notifications and their counters.
type NotificationStorage interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	// MarkPublished moves a draft to published; false when it was not a draft.
	MarkPublished(ctx context.Context, id string, at time.Time) (bool, error)
	DeleteDraft(ctx context.Context, id string) error
	AddTotalRecipients(ctx context.Context, id string, delta int) error
	AddReadCount(ctx context.Context, id string, delta int) error
}

// RecipientStorage persists per-user inbox state.
type RecipientStorage interface {
	// InsertRecipient is idempotent per (notification, user); false means it already existed.
	InsertRecipient(ctx context.Context, r *model.Recipient) (bool, error)
	GetRecipient(ctx context.Context, notificationID, userID string) (*model.Recipient, error)
	ListRecipients(ctx context.Context, notificationID string) ([]model.Recipient, error)
	MarkRecipientDelivered(ctx context.Context, notificationID, userID string, at time.Time) error
	// MarkRecipientRead returns false when the recipient was already read.
	MarkRecipientRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error)
	UnreadNotificationIDs(ctx context.Context, userID string) ([]string, error)
	ListInbox(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.InboxItem, error)
}

// SubscriptionStorage persists push subscriptions.
type SubscriptionStorage interface {
	// UpsertSubscription refreshes the active row for (user, device) or creates
	// one; s.ID is set to the stored row id.
	UpsertSubscription(ctx context.Context, s *model.Subscription) error
	GetSubscription(ctx context.Context, id string) (*model.Subscription, error)
	// GetActiveSubscription returns the active row for (user, device) or NotFound.
	GetActiveSubscription(ctx context.Context, userID, deviceID string) (*model.Subscription, error)
	DeactivateSubscription(ctx context.Context, id string) (bool, error)
	ListActiveSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error)
	PruneInactiveSubscriptions(ctx context.Context, before time.Time) (int64, error)
	SubscriptionStats(ctx context.Context) (model.SubscriptionStats, error)
}

// QueueStorage persists delivery queue entries. Every transition out of
// sending is fenced by the claim token handed out by ClaimPending.
type QueueStorage interface {
	InsertQueueEntry(ctx context.Context, e *model.QueueEntry) (bool, error)
	GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error)
	ListQueueEntries(ctx context.Context, notificationID string) ([]model.QueueEntry, error)
	ClaimPending(ctx context.Context, now time.Time, limit int) ([]model.QueueEntry, error)
	RebindSubscription(ctx context.Context, id, token, subscriptionID string) (bool, error)
	MarkSent(ctx context.Context, id, token string, at time.Time) (bool, error)
	ScheduleRetry(ctx context.Context, id, token string, attempts int, at, next time.Time, reason string) (bool, error)
	MarkFailed(ctx context.Context, id, token string, attempts int, at time.Time, reason string) (bool, error)
	// ListStaleClaims returns entries stuck in sending since before claimedBefore.
	ListStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]model.QueueEntry, error)
}

// ReminderStorage persists the idempotency log of the reminder scanners.
type ReminderStorage interface {
	// InsertReminderLog returns false when the event key was already fired.
	InsertReminderLog(ctx context.Context, l *model.ReminderLog) (bool, error)
	SetReminderNotification(ctx context.Context, eventKey, notificationID string) error
	GetReminderLog(ctx context.Context, eventKey string) (*model.ReminderLog, error)
	PruneReminderLogs(ctx context.Context, before time.Time) (int64, error)
}

type JobRunStorage interface {
	RecordJobRun(ctx context.Context, r *model.JobRun) error
	ListJobRuns(ctx context.Context, job string, limit int) ([]model.JobRun, error)
}

// Store is the full persistence surface. InTx runs fn against a store bound
// to one transaction; fn must only use the store it is given.
type Store interface {
	NotificationStorage
	RecipientStorage
	SubscriptionStorage
	QueueStorage
	ReminderStorage
	JobRunStorage
	Ping(ctx context.Context) error
	InTx(ctx context.Context, fn func(tx Store) error) error
}
