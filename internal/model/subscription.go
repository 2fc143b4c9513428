package model

import "time"

const (
	DeviceMobile  = "mobile"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

// Subscription is one push endpoint of one physical device. At most one
// active row exists per (UserID, DeviceID).
type Subscription struct {
	ID         string    `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	DeviceID   string    `json:"device_id" db:"device_id"`
	DeviceType string    `json:"device_type" db:"device_type"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	P256dh     string    `json:"-" db:"p256dh"`
	Auth       string    `json:"-" db:"auth"`
	Active     bool      `json:"active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}

type SubscriptionStats struct {
	Total    int `json:"total" db:"total"`
	Active   int `json:"active" db:"active"`
	Mobile   int `json:"mobile" db:"mobile"`
	Desktop  int `json:"desktop" db:"desktop"`
	Inactive int `json:"inactive" db:"inactive"`
}
