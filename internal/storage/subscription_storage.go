package storage

import (
	"context"
	"fmt"
	"time"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
)

const subscriptionColumns = `id, user_id, device_id, device_type, endpoint, p256dh, auth,
	is_active, created_at, last_seen_at`

func (s *SQLStorage) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	const query = `INSERT INTO push_subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?)
		ON CONFLICT (user_id, device_id) WHERE is_active = TRUE
		DO UPDATE SET
			endpoint = excluded.endpoint,
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			device_type = excluded.device_type,
			last_seen_at = excluded.last_seen_at
		RETURNING id`

	err := s.get(ctx, &sub.ID, query,
		sub.ID, sub.UserID, sub.DeviceID, sub.DeviceType, sub.Endpoint, sub.P256dh, sub.Auth,
		sub.CreatedAt, sub.LastSeenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	sub.Active = true
	return nil
}

func (s *SQLStorage) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.get(ctx, &sub, `SELECT `+subscriptionColumns+` FROM push_subscriptions WHERE id = ?`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErr.NewNotFound("subscription %s", id)
		}
		return nil, fmt.Errorf("find subscription failed: %w", err)
	}
	return &sub, nil
}

// GetActiveSubscription returns the active row of one physical device.
func (s *SQLStorage) GetActiveSubscription(ctx context.Context, userID, deviceID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.get(ctx, &sub, `SELECT `+subscriptionColumns+`
		FROM push_subscriptions
		WHERE user_id = ? AND device_id = ? AND is_active = TRUE
		ORDER BY last_seen_at DESC, id
		LIMIT 1`, userID, deviceID)
	if err != nil {
		if isNoRows(err) {
			return nil, appErr.NewNotFound("active subscription for device %s", deviceID)
		}
		return nil, fmt.Errorf("find active subscription failed: %w", err)
	}
	return &sub, nil
}

func (s *SQLStorage) DeactivateSubscription(ctx context.Context, id string) (bool, error) {
	n, err := s.exec(ctx,
		`UPDATE push_subscriptions SET is_active = FALSE WHERE id = ? AND is_active = TRUE`, id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	return n == 1, nil
}

// ListActiveSubscriptions returns the user's active rows, most recently seen first.
func (s *SQLStorage) ListActiveSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error) {
	var out []model.Subscription
	err := s.selectAll(ctx, &out, `SELECT `+subscriptionColumns+`
		FROM push_subscriptions
		WHERE user_id = ? AND is_active = TRUE
		ORDER BY last_seen_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions failed: %w", err)
	}
	return out, nil
}

func (s *SQLStorage) PruneInactiveSubscriptions(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.exec(ctx,
		`DELETE FROM push_subscriptions WHERE is_active = FALSE AND last_seen_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune subscriptions: %w", err)
	}
	return n, nil
}

func (s *SQLStorage) SubscriptionStats(ctx context.Context) (model.SubscriptionStats, error) {
	var stats model.SubscriptionStats
	err := s.get(ctx, &stats, `
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_active = TRUE THEN 1 ELSE 0 END), 0) AS active,
			COALESCE(SUM(CASE WHEN is_active = TRUE AND device_type = ? THEN 1 ELSE 0 END), 0) AS mobile,
			COALESCE(SUM(CASE WHEN is_active = TRUE AND device_type = ? THEN 1 ELSE 0 END), 0) AS desktop,
			COALESCE(SUM(CASE WHEN is_active = FALSE THEN 1 ELSE 0 END), 0) AS inactive
		FROM push_subscriptions`, model.DeviceMobile, model.DeviceDesktop)
	if err != nil {
		return stats, fmt.Errorf("subscription stats failed: %w", err)
	}
	return stats, nil
}
