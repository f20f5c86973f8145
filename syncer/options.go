package syncer

import (
	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/events"
	"github.com/ceyewan/routesync/routing"
)

// Option Syncer 选项
type Option func(*options)

type options struct {
	logger       clog.Logger
	formatter    routing.Formatter
	listenerOpts []events.Option
}

// WithLogger 设置 Logger，同时传给每个条目的监听者
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("syncer")
			o.listenerOpts = append(o.listenerOpts, events.WithLogger(logger))
		}
	}
}

// WithFormatter 替换服务名格式化函数
func WithFormatter(f routing.Formatter) Option {
	return func(o *options) {
		if f != nil {
			o.formatter = f
		}
	}
}
