package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ceyewan/routesync/clog"
)

// Option Meter 创建选项
type Option func(*options)

type options struct {
	logger     clog.Logger
	registerer prometheus.Registerer
}

// WithLogger 注入日志，内部追加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithRegisterer 指定 exporter 注册到的 Prometheus Registerer，默认使用全局注册表
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
		}
	}
}
