package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/source"
	"github.com/samims/notifier/pkg/tracing"
)

const (
	scannerOverdue   = "overdue"
	scannerRecurring = "recurring"

	systemAuthor = "system"
)

// Scanner detects reminder events and publishes each at most once.
type Scanner interface {
	RunOnce(ctx context.Context) (model.Summary, error)
}

// OverdueEventKey identifies one missed deadline. A new deadline on the same
// assignment is a new event.
func OverdueEventKey(a model.OverdueAssignment) string {
	return "task-overdue:" + a.AssignmentID + ":" + a.Deadline.UTC().Format(time.RFC3339)
}

// RecurringEventKey identifies one occurrence of a recurring schedule.
func RecurringEventKey(o model.Occurrence) string {
	return "recurring-schedule:" + o.ScheduleID + ":" + o.OccurrenceDate.UTC().Format(time.DateOnly)
}

type overdueScanner struct {
	tasks         source.TaskSource
	notifications NotificationService
	maxAge        time.Duration
	now           Clock
	tracer        *tracing.Tracer
	logger        *slog.Logger
}

// NewOverdueScanner ignores deadlines older than maxAge. maxAge must not be
// shorter than the reminder log retention or pruned events would fire again.
func NewOverdueScanner(tasks source.TaskSource, notifications NotificationService, maxAge time.Duration, logger *slog.Logger) Scanner {
	return &overdueScanner{
		tasks:         tasks,
		notifications: notifications,
		maxAge:        maxAge,
		now:           systemClock,
		tracer:        tracing.NewTracer("notifier/scanner"),
		logger:        logger.With("layer", "service", "component", "overdue_scanner"),
	}
}

func (s *overdueScanner) RunOnce(ctx context.Context) (model.Summary, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "scanner.overdue")
	defer span.End()

	now := s.now()
	assignments, err := s.tasks.ListOverdueAssignments(ctx, now)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.ErrorContext(ctx, "failed to list overdue assignments", "error", err)
		return model.Summary{}, err
	}

	summary := model.Summary{Processed: len(assignments)}
	for _, a := range assignments {
		if a.UserID == "" || !a.Deadline.Before(now) || s.expired(a.Deadline, now) {
			summary.Skipped++
			continue
		}
		key := OverdueEventKey(a)
		ev := model.ReminderEvent{Key: key, Kind: model.ReminderOverdueTask, At: a.Deadline}
		_, fired, err := s.notifications.PublishOnce(ctx, ev, overdueNotification(a, now))
		tally(&summary, scannerOverdue, fired, err)
		if err != nil {
			s.logger.ErrorContext(ctx, "overdue reminder failed", "event_key", key, "error", err)
		}
	}

	span.SetAttributes(attribute.Int("scanner.fired", summary.Succeeded))
	s.logger.InfoContext(ctx, "overdue scan finished",
		"processed", summary.Processed, "fired", summary.Succeeded, "duplicates", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (s *overdueScanner) expired(deadline, now time.Time) bool {
	return s.maxAge > 0 && deadline.Before(now.Add(-s.maxAge))
}

func overdueNotification(a model.OverdueAssignment, now time.Time) *model.Notification {
	hours := formatTenths(int64(now.Sub(a.Deadline) / (6 * time.Minute)))
	title := a.Title
	if title == "" {
		title = "Untitled task"
	}
	return &model.Notification{
		Title: "Overdue Task Reminder",
		Body: fmt.Sprintf("Task %q was due %s and is overdue by %s hours. Please complete it as soon as possible.",
			title, a.Deadline.UTC().Format("Jan 2, 15:04 MST"), hours),
		Category:  model.ReminderOverdueTask,
		Priority:  model.PriorityMedium,
		Target:    model.TargetSpec{Kind: model.TargetUsers, Values: []string{a.UserID}},
		CreatedBy: systemAuthor,
		Metadata: model.Metadata{
			"assignment_id": a.AssignmentID,
			"task_id":       a.TaskID,
			"hours_overdue": hours,
			"reminder_type": "automatic",
		},
	}
}

type recurringScanner struct {
	schedules     source.ScheduleSource
	notifications NotificationService
	windowDays    int
	now           Clock
	tracer        *tracing.Tracer
	logger        *slog.Logger
}

func NewRecurringScanner(schedules source.ScheduleSource, notifications NotificationService, windowDays int, logger *slog.Logger) Scanner {
	return &recurringScanner{
		schedules:     schedules,
		notifications: notifications,
		windowDays:    windowDays,
		now:           systemClock,
		tracer:        tracing.NewTracer("notifier/scanner"),
		logger:        logger.With("layer", "service", "component", "recurring_scanner"),
	}
}

func (s *recurringScanner) RunOnce(ctx context.Context) (model.Summary, error) {
	ctx, span := s.tracer.StartInternalSpan(ctx, "scanner.recurring")
	defer span.End()

	now := s.now()
	occurrences, err := s.schedules.ListUpcomingOccurrences(ctx, now, s.windowDays)
	if err != nil {
		s.tracer.RecordError(span, err)
		s.logger.ErrorContext(ctx, "failed to list upcoming occurrences", "error", err)
		return model.Summary{}, err
	}

	today := now.Truncate(24 * time.Hour)
	horizon := today.AddDate(0, 0, s.windowDays)
	summary := model.Summary{Processed: len(occurrences)}
	for _, o := range occurrences {
		day := o.OccurrenceDate.UTC().Truncate(24 * time.Hour)
		if o.ApproverID == "" || day.Before(today) || day.After(horizon) {
			summary.Skipped++
			continue
		}
		key := RecurringEventKey(o)
		ev := model.ReminderEvent{Key: key, Kind: model.ReminderRecurringSchedule, At: day}
		_, fired, err := s.notifications.PublishOnce(ctx, ev, recurringNotification(o))
		tally(&summary, scannerRecurring, fired, err)
		if err != nil {
			s.logger.ErrorContext(ctx, "recurring reminder failed", "event_key", key, "error", err)
		}
	}

	span.SetAttributes(attribute.Int("scanner.fired", summary.Succeeded))
	s.logger.InfoContext(ctx, "recurring scan finished",
		"processed", summary.Processed, "fired", summary.Succeeded, "duplicates", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func recurringNotification(o model.Occurrence) *model.Notification {
	title := o.Title
	if title == "" {
		title = "Recurring payment"
	}
	amount := FormatMinor(o.AmountMinor)
	if o.Currency != "" {
		amount = o.Currency + " " + amount
	}
	date := o.OccurrenceDate.UTC().Format(time.DateOnly)
	return &model.Notification{
		Title:     "Upcoming Recurring Payment",
		Body:      fmt.Sprintf("%s of %s is scheduled for %s and needs your approval.", title, amount, date),
		Category:  model.ReminderRecurringSchedule,
		Priority:  model.PriorityHigh,
		Target:    model.TargetSpec{Kind: model.TargetUsers, Values: []string{o.ApproverID}},
		CreatedBy: systemAuthor,
		Metadata: model.Metadata{
			"schedule_id":     o.ScheduleID,
			"occurrence_date": date,
			"amount_minor":    strconv.FormatInt(o.AmountMinor, 10),
			"currency":        o.Currency,
			"reminder_type":   "automatic",
		},
	}
}

func tally(summary *model.Summary, scanner string, fired bool, err error) {
	switch {
	case err != nil:
		summary.Failed++
		metrics.ScannerEvents.WithLabelValues(scanner, "error").Inc()
	case fired:
		summary.Succeeded++
		metrics.ScannerEvents.WithLabelValues(scanner, "fired").Inc()
	default:
		summary.Skipped++
		metrics.ScannerEvents.WithLabelValues(scanner, "duplicate").Inc()
	}
}

// FormatMinor renders an amount in minor units (cents) as a decimal string
// using integer arithmetic only.
func FormatMinor(minor int64) string {
	sign := ""
	u := uint64(minor)
	if minor < 0 {
		sign = "-"
		u = -u
	}
	return fmt.Sprintf("%s%d.%02d", sign, u/100, u%100)
}

// formatTenths renders a count of tenths as "h.t".
func formatTenths(tenths int64) string {
	if tenths < 0 {
		tenths = 0
	}
	return fmt.Sprintf("%d.%d", tenths/10, tenths%10)
}
