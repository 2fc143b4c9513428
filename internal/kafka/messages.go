package kafka

import (
	"github.com/samims/notifier/internal/model"
)

// PublishCommand asks the service to publish a notification. Commands that
// carry an EventKey are published at most once per key, so redelivered
// messages are harmless.
type PublishCommand struct {
	EventKey  string           `json:"event_key,omitempty"`
	Kind      string           `json:"kind,omitempty"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Category  string           `json:"category,omitempty"`
	Priority  model.Priority   `json:"priority,omitempty"`
	Target    model.TargetSpec `json:"target"`
	CreatedBy string           `json:"created_by"`
	Metadata  model.Metadata   `json:"metadata,omitempty"`
}

func (c PublishCommand) Notification() *model.Notification {
	return &model.Notification{
		Title:     c.Title,
		Body:      c.Body,
		Category:  c.Category,
		Priority:  c.Priority,
		Target:    c.Target,
		CreatedBy: c.CreatedBy,
		Metadata:  c.Metadata,
	}
}
