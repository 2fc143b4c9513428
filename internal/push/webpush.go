package push

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"golang.org/x/time/rate"

	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/model"
)

// WebPushSender sends VAPID-signed, encrypted Web Push messages, throttled
// to the configured rate.
type WebPushSender struct {
	cfg     config.PushConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWebPushSender(cfg config.PushConfig, logger *slog.Logger) *WebPushSender {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	return &WebPushSender{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("layer", "push", "component", "webpush"),
	}
}

func (s *WebPushSender) Send(ctx context.Context, sub model.Subscription, p Payload) error {
	body, err := p.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadRejected, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push rate limiter: %w", err)
	}

	urgency := webpush.UrgencyNormal
	if p.Urgent() {
		urgency = webpush.UrgencyHigh
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{Auth: sub.Auth, P256dh: sub.P256dh},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.cfg.Subject,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             int(s.cfg.TTL / time.Second),
		Urgency:         urgency,
		Topic:           p.Topic(),
	})
	if err != nil {
		return fmt.Errorf("push send: %w", err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		s.logger.Warn("push service refused message",
			"notification_id", p.NotificationID, "device_id", sub.DeviceID, "status", resp.StatusCode, "error", err)
		return err
	}
	return nil
}

// classify maps a push service response onto the delivery error taxonomy.
func classify(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: status %d", ErrEndpointGone, resp.StatusCode)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: status %d: %s", ErrPayloadRejected, resp.StatusCode, msg)
	}
	return fmt.Errorf("push service status %d: %s", resp.StatusCode, msg)
}
