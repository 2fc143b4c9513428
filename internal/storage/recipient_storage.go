package storage

import (
	"context"
	"fmt"
	"time"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

func (s *SQLStorage) InsertRecipient(ctx context.Context, r *model.Recipient) (bool, error) {
	const query = `INSERT INTO notification_recipients
		(id, notification_id, user_id, status, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (notification_id, user_id) DO NOTHING`

	n, err := s.exec(ctx, query, r.ID, r.NotificationID, r.UserID, r.Status, r.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to save recipient: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) GetRecipient(ctx context.Context, notificationID, userID string) (*model.Recipient, error) {
	var r model.Recipient
	err := s.get(ctx, &r, `
		SELECT id, notification_id, user_id, status, created_at, delivered_at, read_at
		FROM notification_recipients
		WHERE notification_id = ? AND user_id = ?`, notificationID, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErr.NewNotFound("recipient %s of notification %s", userID, notificationID)
		}
		return nil, fmt.Errorf("find recipient failed: %w", err)
	}
	return &r, nil
}

func (s *SQLStorage) ListRecipients(ctx context.Context, notificationID string) ([]model.Recipient, error) {
	var out []model.Recipient
	err := s.selectAll(ctx, &out, `
		SELECT id, notification_id, user_id, status, created_at, delivered_at, read_at
		FROM notification_recipients
		WHERE notification_id = ?
		ORDER BY user_id`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list recipients failed: %w", err)
	}
	return out, nil
}

// MarkRecipientDelivered only advances pending recipients; a read recipient stays read.
func (s *SQLStorage) MarkRecipientDelivered(ctx context.Context, notificationID, userID string, at time.Time) error {
	_, err := s.exec(ctx, `
		UPDATE notification_recipients SET status = ?, delivered_at = ?
		WHERE notification_id = ? AND user_id = ? AND status = ?`,
		model.RecipientDelivered, at, notificationID, userID, model.RecipientPending)
	if err != nil {
		return fmt.Errorf("failed to mark recipient delivered: %w", err)
	}
	return nil
}

func (s *SQLStorage) MarkRecipientRead(ctx context.Context, notificationID, userID string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE notification_recipients SET status = ?, read_at = ?
		WHERE notification_id = ? AND user_id = ? AND status <> ?`,
		model.RecipientRead, at, notificationID, userID, model.RecipientRead)
	if err != nil {
		return false, fmt.Errorf("failed to mark recipient read: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) UnreadNotificationIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.selectAll(ctx, &ids, `
		SELECT notification_id FROM notification_recipients
		WHERE user_id = ? AND status <> ?
		ORDER BY notification_id`, userID, model.RecipientRead)
	if err != nil {
		return nil, fmt.Errorf("list unread failed: %w", err)
	}
	return ids, nil
}

// ListInbox returns the user's published notifications, newest first.
func (s *SQLStorage) ListInbox(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]model.InboxItem, error) {
	query := `
		SELECT n.id, n.title, n.body, n.category, n.priority, n.target, n.status, n.created_by,
			n.created_at, n.published_at, n.metadata, n.total_recipients, n.read_count,
			r.status AS recipient_status, r.read_at
		FROM notification_recipients r
		JOIN notifications n ON n.id = r.notification_id
		WHERE r.user_id = ? AND n.status = ?`
	args := []any{userID, model.StatusPublished}
	if unreadOnly {
		query += ` AND r.status <> ?`
		args = append(args, model.RecipientRead)
	}
	query += ` ORDER BY n.published_at DESC, n.id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var out []model.InboxItem
	if err := s.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list inbox failed: %w", err)
	}
	return out, nil
}
