package provider

import (
	"time"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
)

// DefaultDelay 后台全量刷新的默认间隔
const DefaultDelay = 10 * time.Second

// Option Provider 选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	delay  time.Duration
	sinks  []Sink
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("provider")
		}
	}
}

// WithMeter 设置指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithDelay 设置后台刷新间隔，<= 0 时使用 DefaultDelay
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithSinks 每次发布快照后依次写入 sinks
func WithSinks(sinks ...Sink) Option {
	return func(o *options) {
		for _, s := range sinks {
			if s != nil {
				o.sinks = append(o.sinks, s)
			}
		}
	}
}
