// Package clog 为 routesync 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象 Logger 接口，不暴露底层 slog
//   - 层级命名空间，组件内部统一通过 WithNamespace 派生
//   - 从 Context 中提取 request_id 等字段，以及 OpenTelemetry 的 trace_id/span_id
//   - 运行时动态调整日志级别
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	logger = logger.WithNamespace("routesync")
//	logger.Info("snapshot published", clog.Int("routes", 12))
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}
