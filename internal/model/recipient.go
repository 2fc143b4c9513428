package model

import "time"

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "pending"
	RecipientDelivered RecipientStatus = "delivered"
	RecipientRead      RecipientStatus = "read"
)

// Recipient is unique per (NotificationID, UserID).
type Recipient struct {
	ID             string          `json:"id" db:"id"`
	NotificationID string          `json:"notification_id" db:"notification_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Status         RecipientStatus `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	ReadAt         *time.Time      `json:"read_at,omitempty" db:"read_at"`
}

// InboxItem is a published notification as seen by one recipient.
type InboxItem struct {
	Notification
	RecipientStatus RecipientStatus `json:"recipient_status" db:"recipient_status"`
	ReadAt          *time.Time      `json:"read_at,omitempty" db:"read_at"`
}
