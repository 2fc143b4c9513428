package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func TestKafkaHeaderPropagation(t *testing.T) {
	installRecorder(t)
	tr := NewTracer("test")

	ctx, span := tr.StartProducerSpan(context.Background(), "publish")
	existing := []sarama.RecordHeader{{Key: []byte("k"), Value: []byte("v")}}
	headers := InjectTraceContext(ctx, existing)
	span.End()

	assert.Len(t, existing, 1, "input headers are not mutated")
	require.Greater(t, len(headers), 1)

	consumed := make([]*sarama.RecordHeader, len(headers))
	for i := range headers {
		consumed[i] = &headers[i]
	}
	out := ExtractTraceContext(context.Background(), consumed)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(out).TraceID())
}

func TestRecordError(t *testing.T) {
	rec := installRecorder(t)
	tr := NewTracer("test")

	_, span := tr.StartInternalSpan(context.Background(), "op")
	tr.RecordError(span, nil)
	tr.RecordError(span, errors.New("boom"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{ServiceName: "notifier", SamplingRatio: 1}
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Enabled())

	cfg.SamplingRatio = 2
	assert.Error(t, cfg.Validate())

	cfg = &Config{SamplingRatio: 1}
	assert.Error(t, cfg.Validate())
}
