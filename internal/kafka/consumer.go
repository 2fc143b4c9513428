package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"

	appErr "github.com/samims/notifier/internal/errors"
	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/pkg/tracing"
)

// Publisher is the part of the notification service the consumer drives.
type Publisher interface {
	Publish(ctx context.Context, n *model.Notification) (*model.Notification, error)
	PublishOnce(ctx context.Context, ev model.ReminderEvent, n *model.Notification) (*model.Notification, bool, error)
}

const (
	retryDelay    = 500 * time.Millisecond
	maxRetryDelay = 30 * time.Second
)

// Consumer reads publish commands from a topic using a consumer group.
type Consumer struct {
	topic         string
	publisher     Publisher
	consumerGroup sarama.ConsumerGroup
	retryDelay    time.Duration
	log           *slog.Logger
	tracer        *tracing.Tracer
}

func NewConsumer(topic string, consumerGroup sarama.ConsumerGroup, publisher Publisher, log *slog.Logger) *Consumer {
	return &Consumer{
		topic:         topic,
		consumerGroup: consumerGroup,
		publisher:     publisher,
		retryDelay:    retryDelay,
		log:           log.With("layer", "kafka", "component", "publish_consumer"),
		tracer:        tracing.NewTracer("notifier/kafka"),
	}
}

// Start runs the consume loop until ctx is cancelled or the group is closed.
func (c *Consumer) Start(ctx context.Context) error {
	defer func() {
		if err := c.consumerGroup.Close(); err != nil {
			c.log.Warn("failed to close consumer group", slog.Any("error", err))
		}
	}()

	c.log.Info("kafka consumer started", slog.String("topic", c.topic))

	backoff := time.Second
	for {
		err := c.consumerGroup.Consume(ctx, []string{c.topic}, c)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return err
			}
			c.log.Error("error consuming messages", slog.Any("error", err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		if ctx.Err() != nil {
			c.log.Info("context cancelled, stopping consumer")
			return ctx.Err()
		}
	}
}

func (c *Consumer) Setup(session sarama.ConsumerGroupSession) error {
	for topic, partitions := range session.Claims() {
		c.log.Info("partition assignment", slog.String("topic", topic), slog.Any("partitions", partitions))
	}
	return nil
}

func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	c.log.Info("kafka session cleanup complete")
	return nil
}

// ConsumeClaim commits a message once it is handled or known to be unusable.
// Offsets are cumulative per partition, so a transient failure blocks the
// partition and retries the same message until it succeeds or the session ends.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if !c.process(session.Context(), message) {
			c.log.Warn("session ended before message was handled, leaving offset uncommitted",
				slog.Int("partition", int(message.Partition)), slog.Int64("offset", message.Offset))
			return nil
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// process reports false only when ctx ends before the message is handled.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	delay := c.retryDelay
	for !c.handleMessage(ctx, message) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
	return true
}

// handleMessage reports whether the message offset may be committed.
func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) bool {
	ctx = tracing.ExtractTraceContext(ctx, message.Headers)
	ctx, span := c.tracer.StartConsumerSpan(ctx, "kafka.consume_publish")
	defer span.End()
	c.tracer.AddKafkaAttributes(span, message.Topic, "process", message.Partition, message.Offset)

	var cmd PublishCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		metrics.KafkaMessages.WithLabelValues(message.Topic, "malformed").Inc()
		c.log.ErrorContext(ctx, "failed to decode publish command, skipping",
			slog.Int64("offset", message.Offset), slog.Any("error", err))
		return true
	}
	if cmd.EventKey == "" && len(message.Key) > 0 {
		cmd.EventKey = string(message.Key)
	}

	var err error
	if cmd.EventKey != "" {
		span.SetAttributes(attribute.String(tracing.AttrEventKey, cmd.EventKey))
		kind := cmd.Kind
		if kind == "" {
			kind = model.ReminderPublishCommand
		}
		var fired bool
		_, fired, err = c.publisher.PublishOnce(ctx, model.ReminderEvent{Key: cmd.EventKey, Kind: kind}, cmd.Notification())
		if err == nil && !fired {
			metrics.KafkaMessages.WithLabelValues(message.Topic, "duplicate").Inc()
			c.log.InfoContext(ctx, "publish command already applied", "event_key", cmd.EventKey)
			return true
		}
	} else {
		_, err = c.publisher.Publish(ctx, cmd.Notification())
	}

	switch {
	case err == nil:
		metrics.KafkaMessages.WithLabelValues(message.Topic, "consumed").Inc()
		return true
	case appErr.IsInvalid(err):
		c.tracer.RecordError(span, err)
		metrics.KafkaMessages.WithLabelValues(message.Topic, "rejected").Inc()
		c.log.WarnContext(ctx, "publish command rejected, skipping",
			"event_key", cmd.EventKey, "offset", message.Offset, "error", err)
		return true
	default:
		c.tracer.RecordError(span, err)
		metrics.KafkaMessages.WithLabelValues(message.Topic, "error").Inc()
		c.log.ErrorContext(ctx, "publish command failed", "event_key", cmd.EventKey, "error", err)
		return false
	}
}
