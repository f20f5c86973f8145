package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/routesync/xerrors"
)

func setupTracer(t *testing.T) (oteltrace.Tracer, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	otel.SetTracerProvider(tp)
	setPropagator()
	return tp.Tracer("test"), recorder
}

func TestInit(t *testing.T) {
	t.Run("nil 配置", func(t *testing.T) {
		_, err := Init(nil)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("无 endpoint 时退化为 Discard", func(t *testing.T) {
		shutdown, err := Init(DefaultConfig("routesync"))
		require.NoError(t, err)
		defer shutdown(context.Background())

		_, span := otel.Tracer("test").Start(context.Background(), "op")
		assert.True(t, span.SpanContext().IsValid(), "仍然生成 TraceID")
		span.End()
	})

	t.Run("非法采样率", func(t *testing.T) {
		cfg := DefaultConfig("routesync")
		cfg.Endpoint = "localhost:4317"
		cfg.Sampler = 2
		_, err := Init(cfg)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})

	t.Run("非法 batcher", func(t *testing.T) {
		cfg := DefaultConfig("routesync")
		cfg.Endpoint = "localhost:4317"
		cfg.Batcher = "stream"
		_, err := Init(cfg)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	})
}

func TestInjectExtract(t *testing.T) {
	tracer, _ := setupTracer(t)

	ctx, span := tracer.Start(context.Background(), "upstream")
	defer span.End()

	headers := map[string]string{}
	Inject(ctx, headers)
	require.NotEmpty(t, headers["traceparent"])

	extracted := Extract(context.Background(), headers)
	assert.Equal(t, span.SpanContext().TraceID(), oteltrace.SpanContextFromContext(extracted).TraceID())
}

func TestStartEventSpan(t *testing.T) {
	tracer, recorder := setupTracer(t)

	upstreamCtx, upstream := tracer.Start(context.Background(), "registry.notify")
	headers := map[string]string{}
	Inject(upstreamCtx, headers)
	upstream.End()

	t.Run("上游链路以 link 关联", func(t *testing.T) {
		_, span := StartEventSpan(context.Background(), EventSource{System: SystemNATS, Destination: "routesync.instances.g.s"}, headers)
		span.End()

		ended := recorder.Ended()
		last := ended[len(ended)-1]
		assert.Equal(t, "events.consume routesync.instances.g.s", last.Name())
		assert.Equal(t, oteltrace.SpanKindConsumer, last.SpanKind())
		require.Len(t, last.Links(), 1)
		assert.Equal(t, upstream.SpanContext().TraceID(), last.Links()[0].SpanContext.TraceID())
		assert.NotEqual(t, upstream.SpanContext().TraceID(), last.SpanContext().TraceID())
	})

	t.Run("没有消息头时不带 link", func(t *testing.T) {
		_, span := StartEventSpan(context.Background(), EventSource{System: SystemKafka, ConsumerGroup: "routesync"}, nil)
		span.End()

		ended := recorder.Ended()
		last := ended[len(ended)-1]
		assert.Equal(t, "events.consume", last.Name())
		assert.Empty(t, last.Links())

		attrs := map[string]string{}
		for _, kv := range last.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
		assert.Equal(t, "kafka", attrs["messaging.system"])
		assert.Equal(t, "routesync", attrs["messaging.consumer.group"])
	})
}

func TestMarkSpanError(t *testing.T) {
	tracer, recorder := setupTracer(t)

	_, span := tracer.Start(context.Background(), "rebuild")
	MarkSpanError(span, nil)
	MarkSpanError(span, errors.New("boom"))
	MarkSpanError(nil, errors.New("ignored"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "boom", ended[0].Status().Description)
}
