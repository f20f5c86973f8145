package breaker

import (
	"context"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
)

// Option 熔断器选项
type Option func(*options)

// FallbackFunc 熔断打开时的降级逻辑，返回 nil 表示降级成功
type FallbackFunc func(ctx context.Context, key string, err error) error

type options struct {
	logger       clog.Logger
	meter        metrics.Meter
	fallback     FallbackFunc
	isSuccessful func(err error) bool
}

// WithLogger 设置 Logger，内部追加 "breaker" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 记录拒绝次数和状态变更
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithFallback 设置降级函数
func WithFallback(fn FallbackFunc) Option {
	return func(o *options) {
		o.fallback = fn
	}
}

// WithSuccessPredicate 判定哪些错误不计入失败。
// 例如注册中心返回 4xx 说明节点本身可用，不应推动熔断
func WithSuccessPredicate(fn func(err error) bool) Option {
	return func(o *options) {
		o.isSuccessful = fn
	}
}
