// Package push delivers notification payloads to Web Push endpoints.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samims/notifier/internal/model"
)

var (
	// ErrEndpointGone means the subscription no longer exists at the push
	// service (404/410). The subscription must be deactivated.
	ErrEndpointGone = errors.New("push endpoint gone")
	// ErrPayloadRejected means the push service refused this message
	// (400/413). Retrying the same payload cannot succeed.
	ErrPayloadRejected = errors.New("push payload rejected")
)

const maxTopicLen = 32

// Sender delivers one payload to one subscription. Errors other than
// ErrEndpointGone and ErrPayloadRejected are transient.
type Sender interface {
	Send(ctx context.Context, sub model.Subscription, p Payload) error
}

// Payload is the JSON document the service worker on the device receives.
type Payload struct {
	NotificationID string         `json:"notification_id"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Category       string         `json:"category"`
	Priority       model.Priority `json:"priority"`
	URL            string         `json:"url"`
	Tag            string         `json:"tag"`
}

func NewPayload(n *model.Notification) Payload {
	return Payload{
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
		Category:       n.Category,
		Priority:       n.Priority,
		URL:            "/notifications/" + n.ID,
		Tag:            n.Category + "-" + n.ID,
	}
}

func (p Payload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}

// Urgent reports whether the push service should wake the device immediately.
func (p Payload) Urgent() bool {
	return p.Priority == model.PriorityHigh || p.Priority == model.PriorityUrgent
}

// Topic collapses pending pushes of the same notification on the push
// service. Push services cap topics at 32 characters.
func (p Payload) Topic() string {
	if len(p.NotificationID) > maxTopicLen {
		return p.NotificationID[:maxTopicLen]
	}
	return p.NotificationID
}

// LogSender only logs. It stands in when no VAPID keys are configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("layer", "push", "component", "log_sender")}
}

func (s *LogSender) Send(_ context.Context, sub model.Subscription, p Payload) error {
	s.logger.Info("push skipped, no transport configured",
		"notification_id", p.NotificationID, "user_id", sub.UserID, "device_id", sub.DeviceID)
	return nil
}
