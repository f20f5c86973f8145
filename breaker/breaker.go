// Package breaker 提供按 key 隔离的熔断器，基于 sony/gobreaker 实现。
//
// routesync 用它为每个注册中心节点单独熔断：连续失败的节点被短暂跳过，
// 请求直接轮转到下一个节点，半开状态下再放行少量探测请求。
//
//	brk, _ := breaker.New(&breaker.Config{
//		Enabled:         true,
//		Timeout:         30 * time.Second,
//		FailureRatio:    0.6,
//		MinimumRequests: 5,
//	}, breaker.WithLogger(logger))
//
//	body, err := brk.Execute(ctx, server, func() (any, error) {
//		return doRequest(ctx, server)
//	})
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/routesync/clog"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 以 key 对应的熔断器保护 fn；熔断打开时不调用 fn，返回 ErrOpenState 或降级结果
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 获取 key 的熔断状态，未使用过的 key 视为闭合
	State(key string) (State, error)
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Enabled 为 false 时调用方不创建熔断器
	Enabled bool `mapstructure:"enabled"`

	// MaxRequests 半开状态下允许通过的探测请求数，默认 1
	MaxRequests uint32 `mapstructure:"max_requests"`

	// Interval 闭合状态下清空计数的周期，0 表示不清空
	Interval time.Duration `mapstructure:"interval"`

	// Timeout 打开状态持续时间，默认 30s
	Timeout time.Duration `mapstructure:"timeout"`

	// FailureRatio 失败率阈值，默认 0.6
	FailureRatio float64 `mapstructure:"failure_ratio"`

	// MinimumRequests 统计失败率前的最小请求数，默认 5
	MinimumRequests uint32 `mapstructure:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 5
	}
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()

	opt := options{logger: clog.Discard()}
	for _, o := range opts {
		o(&opt)
	}

	opt.logger.Info("creating circuit breaker",
		clog.Int("max_requests", int(c.MaxRequests)),
		clog.Duration("interval", c.Interval),
		clog.Duration("timeout", c.Timeout),
		clog.Float64("failure_ratio", c.FailureRatio),
		clog.Int("minimum_requests", int(c.MinimumRequests)))

	return newBreaker(&c, opt), nil
}
