package events

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/connector"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/trace"
)

// DefaultTopic Kafka 实例变更事件的 topic
const DefaultTopic = "routesync-instance-changes"

// KafkaSource 消费 Kafka topic 中的实例变更事件。
// 连接器需要以 connector.WithKafkaOptions(KafkaConsumeOptions(...)...) 创建
type KafkaSource struct {
	conn      connector.KafkaConnector
	topic     string
	group     string
	publisher Publisher
	logger    clog.Logger
	received  metrics.Counter
}

// KafkaConsumeOptions 消费实例变更事件所需的 franz-go 选项
func KafkaConsumeOptions(topic, group string) []kgo.Opt {
	if topic == "" {
		topic = DefaultTopic
	}
	opts := []kgo.Opt{kgo.ConsumeTopics(topic)}
	if group != "" {
		opts = append(opts, kgo.ConsumerGroup(group))
	} else {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}
	return opts
}

// NewKafkaSource topic 为空时使用 DefaultTopic
func NewKafkaSource(conn connector.KafkaConnector, topic, group string, publisher Publisher, opts ...Option) *KafkaSource {
	o := applyOptions(opts)
	if topic == "" {
		topic = DefaultTopic
	}
	received, _ := o.meter.Counter(metrics.MetricEventsReceived, "Instance change events received from external sources")
	return &KafkaSource{
		conn:      conn,
		topic:     topic,
		group:     group,
		publisher: publisher,
		logger:    o.logger.WithNamespace("kafka").With(clog.String("topic", topic)),
		received:  received,
	}
}

func (s *KafkaSource) Name() string { return trace.SystemKafka }

// Run 轮询直到 ctx 结束或客户端关闭
func (s *KafkaSource) Run(ctx context.Context) error {
	client := s.conn.GetClient()
	if client == nil {
		return connector.ErrNotConnected
	}
	s.logger.Info("kafka event source started", clog.String("consumer_group", s.group))

	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, err := range errs {
				s.logger.Error("kafka poll error", clog.String("err_topic", err.Topic), clog.Error(err.Err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		fetches.EachRecord(func(r *kgo.Record) {
			s.handle(ctx, r)
		})
	}
}

func (s *KafkaSource) handle(ctx context.Context, r *kgo.Record) {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	spanCtx, span := trace.StartEventSpan(ctx, trace.EventSource{
		System:        trace.SystemKafka,
		Destination:   r.Topic,
		ConsumerGroup: s.group,
	}, headers)
	defer span.End()

	ev, err := DecodeEvent(r.Value)
	if err != nil {
		trace.MarkSpanError(span, err)
		s.received.Inc(spanCtx, metrics.L(metrics.LabelTrigger, s.Name()), metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
		s.logger.WarnContext(spanCtx, "invalid event dropped", clog.Int64("offset", r.Offset), clog.Error(err))
		return
	}

	s.received.Inc(spanCtx, metrics.L(metrics.LabelTrigger, s.Name()), metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
	if err := s.publisher.Publish(spanCtx, ev); err != nil {
		trace.MarkSpanError(span, err)
		s.logger.WarnContext(spanCtx, "failed to dispatch event", clog.Error(err))
	}
}
