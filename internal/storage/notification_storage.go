package storage

import (
	"context"
	"fmt"
	"time"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

const notificationColumns = `id, title, body, category, priority, target, status, created_by,
	created_at, published_at, metadata, total_recipients, read_count`

func (s *SQLStorage) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	const query = `INSERT INTO notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.exec(ctx, query,
		n.ID, n.Title, n.Body, n.Category, n.Priority, n.Target, n.Status, n.CreatedBy,
		n.CreatedAt, n.PublishedAt, n.Metadata, n.TotalRecipients, n.ReadCount)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (s *SQLStorage) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := s.get(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErr.NewNotFound("notification %s", id)
		}
		return nil, fmt.Errorf("find notification failed: %w", err)
	}
	return &n, nil
}

func (s *SQLStorage) MarkPublished(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.exec(ctx,
		`UPDATE notifications SET status = ?, published_at = ? WHERE id = ? AND status = ?`,
		model.StatusPublished, at, id, model.StatusDraft)
	if err != nil {
		return false, fmt.Errorf("failed to publish notification: %w", err)
	}
	return n == 1, nil
}

// DeleteDraft removes a draft. Published notifications are never deleted.
func (s *SQLStorage) DeleteDraft(ctx context.Context, id string) error {
	n, err := s.exec(ctx, `DELETE FROM notifications WHERE id = ? AND status = ?`, id, model.StatusDraft)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	if n == 0 {
		if _, err := s.GetNotification(ctx, id); err != nil {
			return err
		}
		return appErr.ErrNotDraft
	}
	return nil
}

func (s *SQLStorage) AddTotalRecipients(ctx context.Context, id string, delta int) error {
	_, err := s.exec(ctx,
		`UPDATE notifications SET total_recipients = total_recipients + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to update total recipients: %w", err)
	}
	return nil
}

func (s *SQLStorage) AddReadCount(ctx context.Context, id string, delta int) error {
	_, err := s.exec(ctx,
		`UPDATE notifications SET read_count = read_count + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to update read count: %w", err)
	}
	return nil
}
