package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// 事件源的 messaging.system 取值，同时作为事件源名称
const (
	SystemNATS  = "nats"
	SystemKafka = "kafka"
)

const eventsTracer = "routesync/events"

// EventSource 一条实例变更消息的来源
type EventSource struct {
	System        string // nats|kafka
	Destination   string // subject 或 topic
	ConsumerGroup string
}

func (s EventSource) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("messaging.system", s.System),
		attribute.String("messaging.operation", "process"),
	}
	if s.Destination != "" {
		attrs = append(attrs, attribute.String("messaging.destination", s.Destination))
	}
	if s.ConsumerGroup != "" {
		attrs = append(attrs, attribute.String("messaging.consumer.group", s.ConsumerGroup))
	}
	return attrs
}

// StartEventSpan 为收到的实例变更消息启动消费 Span。
// 消息头带有上游链路时只以 link 关联，重建链路从这里开始新的 trace
func StartEventSpan(ctx context.Context, src EventSource, headers map[string]string) (context.Context, oteltrace.Span) {
	opts := []oteltrace.SpanStartOption{
		oteltrace.WithSpanKind(oteltrace.SpanKindConsumer),
		oteltrace.WithAttributes(src.attributes()...),
	}
	if len(headers) > 0 {
		if upstream := oteltrace.SpanContextFromContext(Extract(ctx, headers)); upstream.IsValid() {
			opts = append(opts, oteltrace.WithLinks(oteltrace.Link{SpanContext: upstream}))
		}
	}

	name := "events.consume"
	if src.Destination != "" {
		name += " " + src.Destination
	}
	return otel.Tracer(eventsTracer).Start(ctx, name, opts...)
}

// MarkSpanError err 非 nil 时记录错误并把 Span 状态置为 Error
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
