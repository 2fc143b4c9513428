package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type NotificationStatus string

const (
	StatusDraft     NotificationStatus = "draft"
	StatusPublished NotificationStatus = "published"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is authored once and is immutable after publish,
// apart from the TotalRecipients and ReadCount counters.
type Notification struct {
	ID              string             `json:"id" db:"id"`
	Title           string             `json:"title" db:"title"`
	Body            string             `json:"body" db:"body"`
	Category        string             `json:"category" db:"category"`
	Priority        Priority           `json:"priority" db:"priority"`
	Target          TargetSpec         `json:"target" db:"target"`
	Status          NotificationStatus `json:"status" db:"status"`
	CreatedBy       string             `json:"created_by" db:"created_by"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	PublishedAt     *time.Time         `json:"published_at,omitempty" db:"published_at"`
	Metadata        Metadata           `json:"metadata,omitempty" db:"metadata"`
	TotalRecipients int                `json:"total_recipients" db:"total_recipients"`
	ReadCount       int                `json:"read_count" db:"read_count"`
}

// Metadata carries correlation data such as the source task id.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(src any) error {
	return scanJSON(src, m)
}

// scanJSON decodes a JSON text column; drivers hand back either string or []byte.
func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
