package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

const queueColumns = `id, notification_id, user_id, device_id, subscription_id, status, attempts,
	max_attempts, last_attempt_at, next_retry_at, claimed_at, sent_at, last_error, claim_token, created_at`

// InsertQueueEntry is idempotent per (notification, device); false means the
// device was already queued for this notification.
func (s *SQLStorage) InsertQueueEntry(ctx context.Context, e *model.QueueEntry) (bool, error) {
	const query = `INSERT INTO notification_queue
		(id, notification_id, user_id, device_id, subscription_id, status, attempts, max_attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (notification_id, device_id) DO NOTHING`

	n, err := s.exec(ctx, query,
		e.ID, e.NotificationID, e.UserID, e.DeviceID, e.SubscriptionID, e.Status, e.Attempts, e.MaxAttempts, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to save queue entry: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) GetQueueEntry(ctx context.Context, id string) (*model.QueueEntry, error) {
	var e model.QueueEntry
	if err := s.get(ctx, &e, `SELECT `+queueColumns+` FROM notification_queue WHERE id = ?`, id); err != nil {
		if isNoRows(err) {
			return nil, appErr.NewNotFound("queue entry %s", id)
		}
		return nil, fmt.Errorf("find queue entry failed: %w", err)
	}
	return &e, nil
}

func (s *SQLStorage) ListQueueEntries(ctx context.Context, notificationID string) ([]model.QueueEntry, error) {
	var out []model.QueueEntry
	err := s.selectAll(ctx, &out, `SELECT `+queueColumns+`
		FROM notification_queue
		WHERE notification_id = ?
		ORDER BY user_id, device_id`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list queue entries failed: %w", err)
	}
	return out, nil
}

// ClaimPending moves up to limit due entries from pending to sending and tags
// them with a fresh claim token. The status guard on the outer UPDATE keeps
// overlapping claims disjoint: a row taken by another claimer no longer matches.
func (s *SQLStorage) ClaimPending(ctx context.Context, now time.Time, limit int) ([]model.QueueEntry, error) {
	token := uuid.NewString()

	_, err := s.exec(ctx, `UPDATE notification_queue
		SET status = ?, claimed_at = ?, claim_token = ?
		WHERE id IN (
			SELECT id FROM notification_queue
			WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
			ORDER BY created_at, id
			LIMIT ?
		) AND status = ?`,
		model.QueueSending, now, token,
		model.QueuePending, now, limit,
		model.QueuePending)
	if err != nil {
		return nil, fmt.Errorf("claim queue entries failed: %w", err)
	}

	var out []model.QueueEntry
	err = s.selectAll(ctx, &out, `SELECT `+queueColumns+`
		FROM notification_queue
		WHERE claim_token = ?
		ORDER BY created_at, id`, token)
	if err != nil {
		return nil, fmt.Errorf("load claimed entries failed: %w", err)
	}
	return out, nil
}

// RebindSubscription points a claimed entry at the current subscription of
// its device. The entry stays in sending under the same claim.
func (s *SQLStorage) RebindSubscription(ctx context.Context, id, token, subscriptionID string) (bool, error) {
	n, err := s.exec(ctx, `UPDATE notification_queue SET subscription_id = ?
		WHERE id = ? AND status = ? AND claim_token = ?`,
		subscriptionID, id, model.QueueSending, token)
	if err != nil {
		return false, fmt.Errorf("failed to rebind subscription: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) MarkSent(ctx context.Context, id, token string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE notification_queue
		SET status = ?, attempts = attempts + 1, sent_at = ?, last_attempt_at = ?,
			last_error = NULL, claimed_at = NULL, claim_token = NULL
		WHERE id = ? AND status = ? AND claim_token = ?`,
		model.QueueSent, at, at, id, model.QueueSending, token)
	if err != nil {
		return false, fmt.Errorf("failed to mark sent: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) ScheduleRetry(ctx context.Context, id, token string, attempts int, at, next time.Time, reason string) (bool, error) {
	n, err := s.exec(ctx, `UPDATE notification_queue
		SET status = ?, attempts = ?, last_attempt_at = ?, next_retry_at = ?,
			last_error = ?, claimed_at = NULL, claim_token = NULL
		WHERE id = ? AND status = ? AND claim_token = ? AND ? < max_attempts`,
		model.QueuePending, attempts, at, next, reason, id, model.QueueSending, token, attempts)
	if err != nil {
		return false, fmt.Errorf("failed to schedule retry: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) MarkFailed(ctx context.Context, id, token string, attempts int, at time.Time, reason string) (bool, error) {
	n, err := s.exec(ctx, `UPDATE notification_queue
		SET status = ?, attempts = ?, last_attempt_at = ?, next_retry_at = NULL,
			last_error = ?, claimed_at = NULL, claim_token = NULL
		WHERE id = ? AND status = ? AND claim_token = ?`,
		model.QueueFailed, attempts, at, reason, id, model.QueueSending, token)
	if err != nil {
		return false, fmt.Errorf("failed to mark failed: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStorage) ListStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]model.QueueEntry, error) {
	var out []model.QueueEntry
	err := s.selectAll(ctx, &out, `SELECT `+queueColumns+`
		FROM notification_queue
		WHERE status = ? AND claimed_at < ?
		ORDER BY claimed_at, id
		LIMIT ?`, model.QueueSending, claimedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale claims failed: %w", err)
	}
	return out, nil
}
