package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/model"
	"github.com/samims/notifier/pkg/tracing"
)

// DeliveryProducer publishes delivery events to Kafka. It never blocks the
// delivery worker: when the producer input is full the event is dropped and
// counted.
type DeliveryProducer struct {
	asyncProducer sarama.AsyncProducer
	topic         string
	log           *slog.Logger
	wg            sync.WaitGroup
	closeOnce     sync.Once
	tracer        *tracing.Tracer
}

func NewDeliveryProducer(asyncProducer sarama.AsyncProducer, topic string, log *slog.Logger) *DeliveryProducer {
	if asyncProducer == nil || log == nil {
		panic("NewDeliveryProducer: nil dependencies provided")
	}
	if topic == "" {
		panic("NewDeliveryProducer: topic must not be empty")
	}
	return &DeliveryProducer{
		asyncProducer: asyncProducer,
		topic:         topic,
		log:           log.With("layer", "kafka", "component", "delivery_producer"),
		tracer:        tracing.NewTracer("notifier/kafka"),
	}
}

// Start launches background handlers for the success and error channels.
// They run until Close drains the producer, not until ctx is cancelled, so
// the outcome of every in-flight event is still recorded during shutdown.
func (p *DeliveryProducer) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	p.log.InfoContext(ctx, "starting kafka producer handlers", "topic", p.topic)
	p.wg.Add(2)
	go p.handleSuccess(ctx)
	go p.handleErrors(ctx)
}

func (p *DeliveryProducer) handleSuccess(ctx context.Context) {
	defer p.wg.Done()
	for msg := range p.asyncProducer.Successes() {
		metrics.KafkaMessages.WithLabelValues(msg.Topic, "produced").Inc()
		p.log.DebugContext(ctx, "delivery event produced",
			slog.String("topic", msg.Topic),
			slog.Int("partition", int(msg.Partition)),
			slog.Int64("offset", msg.Offset))
	}
}

func (p *DeliveryProducer) handleErrors(ctx context.Context) {
	defer p.wg.Done()
	for err := range p.asyncProducer.Errors() {
		metrics.KafkaMessages.WithLabelValues(err.Msg.Topic, "produce_error").Inc()
		p.log.ErrorContext(ctx, "delivery event not produced",
			slog.String("topic", err.Msg.Topic),
			slog.Any("error", err.Err))
	}
}

// PublishDelivery queues ev keyed by notification id, so the events of one
// notification stay ordered within a partition.
func (p *DeliveryProducer) PublishDelivery(ctx context.Context, ev model.DeliveryEvent) {
	ctx, span := p.tracer.StartProducerSpan(ctx, "kafka.publish_delivery",
		attribute.String(tracing.AttrQueueEntryID, ev.QueueEntryID),
		attribute.String("queue.status", string(ev.Status)),
	)
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		p.tracer.RecordError(span, err)
		p.log.Error("failed to marshal delivery event", slog.Any("error", err))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(ev.NotificationID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers:   tracing.InjectTraceContext(ctx, nil),
	}

	select {
	case p.asyncProducer.Input() <- msg:
		p.tracer.AddKafkaAttributes(span, p.topic, "publish", -1, -1)
	case <-ctx.Done():
		p.log.Warn("delivery event dropped, context done", "queue_entry_id", ev.QueueEntryID)
	default:
		metrics.KafkaMessages.WithLabelValues(p.topic, "dropped").Inc()
		p.log.Warn("delivery event dropped, producer busy", "queue_entry_id", ev.QueueEntryID)
	}
}

// Close flushes the producer and waits for the handlers.
func (p *DeliveryProducer) Close() {
	p.closeOnce.Do(func() {
		p.log.Info("closing kafka producer")
		p.asyncProducer.AsyncClose()
		p.wg.Wait()
	})
}
