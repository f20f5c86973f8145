package events

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/connector"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/trace"
	"github.com/ceyewan/routesync/xerrors"
)

// DefaultSubject NATS 主题前缀，完整主题为 routesync.instances.{group}.{service}
const DefaultSubject = "routesync.instances"

// NATSSource 订阅 NATS Core 主题 {subject}.> 接收实例变更事件
type NATSSource struct {
	conn      connector.NATSConnector
	subject   string
	publisher Publisher
	logger    clog.Logger
	received  metrics.Counter
}

// NewNATSSource subject 为空时使用 DefaultSubject
func NewNATSSource(conn connector.NATSConnector, subject string, publisher Publisher, opts ...Option) *NATSSource {
	o := applyOptions(opts)
	if subject == "" {
		subject = DefaultSubject
	}
	received, _ := o.meter.Counter(metrics.MetricEventsReceived, "Instance change events received from external sources")
	return &NATSSource{
		conn:      conn,
		subject:   subject,
		publisher: publisher,
		logger:    o.logger.WithNamespace("nats").With(clog.String("subject", subject)),
		received:  received,
	}
}

func (s *NATSSource) Name() string { return trace.SystemNATS }

// Run 订阅直到 ctx 结束，连接由 connector 管理，这里不关闭
func (s *NATSSource) Run(ctx context.Context) error {
	client := s.conn.GetClient()
	if client == nil {
		return connector.ErrNotConnected
	}
	sub, err := client.Subscribe(s.subject+".>", func(msg *nats.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return xerrors.Wrapf(err, "subscribe to %s failed", s.subject)
	}
	s.logger.Info("nats event source started")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && !xerrors.Is(err, nats.ErrConnectionClosed) {
		s.logger.Warn("failed to unsubscribe", clog.Error(err))
	}
	return nil
}

func (s *NATSSource) handle(ctx context.Context, msg *nats.Msg) {
	headers := make(map[string]string, len(msg.Header))
	for k := range msg.Header {
		headers[k] = msg.Header.Get(k)
	}
	spanCtx, span := trace.StartEventSpan(ctx, trace.EventSource{System: trace.SystemNATS, Destination: msg.Subject}, headers)
	defer span.End()

	ev, err := DecodeEvent(msg.Data)
	if err != nil && len(msg.Data) == 0 {
		if fromSubject, ok := eventFromSubject(s.subject, msg.Subject); ok {
			ev, err = fromSubject, nil
		}
	}
	if err != nil {
		trace.MarkSpanError(span, err)
		s.received.Inc(spanCtx, metrics.L(metrics.LabelTrigger, s.Name()), metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
		s.logger.WarnContext(spanCtx, "invalid event dropped", clog.String("msg_subject", msg.Subject), clog.Error(err))
		return
	}

	s.received.Inc(spanCtx, metrics.L(metrics.LabelTrigger, s.Name()), metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
	if err := s.publisher.Publish(spanCtx, ev); err != nil {
		trace.MarkSpanError(span, err)
		s.logger.WarnContext(spanCtx, "failed to dispatch event", clog.Error(err))
	}
}
