package connector

import (
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	kafkaOpts []kgo.Opt
}

// Option 连接器选项
type Option func(*options)

// WithLogger 设置日志，内部追加 "connector" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 记录连接尝试与结果
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithKafkaOptions 追加 franz-go 客户端选项，例如消费的 topic 与消费者组
func WithKafkaOptions(opts ...kgo.Opt) Option {
	return func(o *options) {
		o.kafkaOpts = append(o.kafkaOpts, opts...)
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
