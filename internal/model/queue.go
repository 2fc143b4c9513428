package model

import "time"

type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSending QueueStatus = "sending"
	QueueSent    QueueStatus = "sent"
	QueueFailed  QueueStatus = "failed"

	// QueueRetrying is reported, never stored: a pending entry waiting for its next retry.
	QueueRetrying QueueStatus = "retrying"
)

// Terminal reports whether no further automatic transition can happen.
func (s QueueStatus) Terminal() bool {
	return s == QueueSent || s == QueueFailed
}

// QueueEntry is one delivery of one notification to one device.
// At most one entry exists per (NotificationID, DeviceID).
type QueueEntry struct {
	ID             string      `json:"id" db:"id"`
	NotificationID string      `json:"notification_id" db:"notification_id"`
	UserID         string      `json:"user_id" db:"user_id"`
	DeviceID       string      `json:"device_id" db:"device_id"`
	SubscriptionID string      `json:"subscription_id" db:"subscription_id"`
	Status         QueueStatus `json:"status" db:"status"`
	Attempts       int         `json:"attempts" db:"attempts"`
	MaxAttempts    int         `json:"max_attempts" db:"max_attempts"`
	LastAttemptAt  *time.Time  `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	NextRetryAt    *time.Time  `json:"next_retry_at,omitempty" db:"next_retry_at"`
	ClaimedAt      *time.Time  `json:"claimed_at,omitempty" db:"claimed_at"`
	SentAt         *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
	LastError      *string     `json:"last_error,omitempty" db:"last_error"`
	ClaimToken     *string     `json:"-" db:"claim_token"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// EffectiveStatus reports a pending entry with a future retry time as retrying.
func (e QueueEntry) EffectiveStatus(now time.Time) QueueStatus {
	if e.Status == QueuePending && e.NextRetryAt != nil && e.NextRetryAt.After(now) {
		return QueueRetrying
	}
	return e.Status
}

// DeliveryEvent is emitted for every retry or terminal transition of a QueueEntry.
type DeliveryEvent struct {
	QueueEntryID   string      `json:"queue_entry_id"`
	NotificationID string      `json:"notification_id"`
	UserID         string      `json:"user_id"`
	DeviceID       string      `json:"device_id"`
	Status         QueueStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	Error          string      `json:"error,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
