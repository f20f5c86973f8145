package naming

import (
	"net/http"

	"github.com/ceyewan/routesync/breaker"
	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/security"
)

// Option 客户端选项
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	breaker breaker.Breaker
	tokens  security.TokenProvider
	client  *http.Client
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("naming")
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

// WithBreaker 按服务端地址熔断，被熔断的服务端视为本次尝试失败
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithTokenProvider 设置访问令牌来源
func WithTokenProvider(p security.TokenProvider) Option {
	return func(o *options) {
		if p != nil {
			o.tokens = p
		}
	}
}

// WithHTTPClient 替换 HTTP 客户端，单次尝试的超时仍由 Config.Timeout 控制
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}
