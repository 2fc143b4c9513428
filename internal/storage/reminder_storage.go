package storage

import (
	"context"
	"fmt"
	"time"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

// InsertReminderLog claims an event key. Under concurrent callers exactly one
// insert succeeds; the rest see false and must not emit a notification.
func (s *SQLStorage) InsertReminderLog(ctx context.Context, l *model.ReminderLog) (bool, error) {
	if l.EventAt.IsZero() {
		l.EventAt = l.FiredAt
	}
	n, err := s.exec(ctx, `INSERT INTO reminder_logs (event_key, kind, fired_at, event_at, notification_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (event_key) DO NOTHING`,
		l.EventKey, l.Kind, l.FiredAt, l.EventAt, l.NotificationID)
	if err != nil {
		return false, fmt.Errorf("failed to save reminder log: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) SetReminderNotification(ctx context.Context, eventKey, notificationID string) error {
	n, err := s.exec(ctx,
		`UPDATE reminder_logs SET notification_id = ? WHERE event_key = ?`, notificationID, eventKey)
	if err != nil {
		return fmt.Errorf("failed to link reminder log: %w", err)
	}
	if n == 0 {
		return appErr.NewNotFound("reminder log %s", eventKey)
	}
	return nil
}

func (s *SQLStorage) GetReminderLog(ctx context.Context, eventKey string) (*model.ReminderLog, error) {
	var l model.ReminderLog
	err := s.get(ctx, &l,
		`SELECT event_key, kind, fired_at, event_at, notification_id FROM reminder_logs WHERE event_key = ?`, eventKey)
	if err != nil {
		if isNoRows(err) {
			return nil, appErr.NewNotFound("reminder log %s", eventKey)
		}
		return nil, fmt.Errorf("find reminder log failed: %w", err)
	}
	return &l, nil
}

// PruneReminderLogs deletes log rows whose event date is before the cutoff.
// Scanners ignore events that old, so a pruned key cannot fire again.
func (s *SQLStorage) PruneReminderLogs(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.exec(ctx, `DELETE FROM reminder_logs WHERE event_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune reminder logs: %w", err)
	}
	return n, nil
}
