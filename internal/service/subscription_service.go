package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/internal/storage"
)

// RegisterRequest is what a client sends when its service worker subscribes.
type RegisterRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceType string `json:"device_type"`
	Endpoint   string `json:"endpoint"`
	Keys       struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// SubscriptionService is the subscription registry.
type SubscriptionService interface {
	// Register creates or refreshes the active subscription of (user, device).
	Register(ctx context.Context, userID string, req RegisterRequest) (*model.Subscription, error)
	// Deactivate is idempotent. A non-empty ownerID restricts it to that user's rows.
	Deactivate(ctx context.Context, id, ownerID string) error
	ListActive(ctx context.Context, userID string) ([]model.Subscription, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context) (model.SubscriptionStats, error)
}

type subscriptionService struct {
	store  storage.SubscriptionStorage
	now    Clock
	logger *slog.Logger
}

func NewSubscriptionService(store storage.SubscriptionStorage, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		store:  store,
		now:    systemClock,
		logger: logger.With("layer", "service", "component", "subscription_service"),
	}
}

func (s *subscriptionService) Register(ctx context.Context, userID string, req RegisterRequest) (*model.Subscription, error) {
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if userID == "" || req.DeviceID == "" {
		return nil, appErr.NewInvalid("user id and device id are required")
	}
	if u, err := url.Parse(req.Endpoint); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, appErr.NewInvalid("endpoint must be an absolute http(s) URL")
	}
	switch req.DeviceType {
	case model.DeviceMobile, model.DeviceDesktop:
	default:
		req.DeviceType = model.DeviceUnknown
	}

	now := s.now()
	sub := &model.Subscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceID:   req.DeviceID,
		DeviceType: req.DeviceType,
		Endpoint:   req.Endpoint,
		P256dh:     req.Keys.P256dh,
		Auth:       req.Keys.Auth,
		Active:     true,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		s.logger.ErrorContext(ctx, "failed to register subscription", "user_id", userID, "device_id", req.DeviceID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription registered", "subscription_id", sub.ID, "user_id", userID, "device_id", req.DeviceID)
	return s.store.GetSubscription(ctx, sub.ID)
}

func (s *subscriptionService) Deactivate(ctx context.Context, id, ownerID string) error {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return err
	}
	if ownerID != "" && sub.UserID != ownerID {
		return appErr.NewNotFound("subscription %s", id)
	}
	changed, err := s.store.DeactivateSubscription(ctx, id)
	if err != nil {
		return err
	}
	if changed {
		s.logger.InfoContext(ctx, "subscription deactivated", "subscription_id", id, "user_id", sub.UserID)
	}
	return nil
}

func (s *subscriptionService) ListActive(ctx context.Context, userID string) ([]model.Subscription, error) {
	subs, err := s.store.ListActiveSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	return subs, nil
}

// Prune deletes inactive subscriptions not seen within olderThan.
func (s *subscriptionService) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.store.PruneInactiveSubscriptions(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "pruned inactive subscriptions", "count", n)
	}
	return n, nil
}

func (s *subscriptionService) Stats(ctx context.Context) (model.SubscriptionStats, error) {
	return s.store.SubscriptionStats(ctx)
}
