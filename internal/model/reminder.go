package model

import "time"

const (
	ReminderOverdueTask       = "task_overdue"
	ReminderRecurringSchedule = "recurring_schedule"
	ReminderPublishCommand    = "publish_command"
)

// ReminderEvent identifies one firing of a trigger. At is the date of the
// event itself; zero means the moment it fired.
type ReminderEvent struct {
	Key  string
	Kind string
	At   time.Time
}

// ReminderLog is append-only; EventKey is unique.
type ReminderLog struct {
	EventKey       string    `json:"event_key" db:"event_key"`
	Kind           string    `json:"kind" db:"kind"`
	FiredAt        time.Time `json:"fired_at" db:"fired_at"`
	EventAt        time.Time `json:"event_at" db:"event_at"`
	NotificationID *string   `json:"notification_id,omitempty" db:"notification_id"`
}

// OverdueAssignment is a task assignment whose deadline passed without completion.
type OverdueAssignment struct {
	AssignmentID string    `json:"assignment_id"`
	TaskID       string    `json:"task_id,omitempty"`
	Deadline     time.Time `json:"deadline"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
}

// Occurrence is the next occurrence of a recurring payment schedule.
// Amounts are minor currency units.
type Occurrence struct {
	ScheduleID     string    `json:"schedule_id"`
	OccurrenceDate time.Time `json:"occurrence_date"`
	ApproverID     string    `json:"approver_id"`
	Title          string    `json:"title,omitempty"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency,omitempty"`
}
