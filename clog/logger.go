package clog

import "context"

// Logger 结构化日志接口
//
// 每个级别都有带 Context 的版本，带 Context 的方法会按选项提取 request_id、trace_id 等字段。
//
//	logger.Info("snapshot published", clog.Int("routes", 3))
//	logger.WithNamespace("naming").WarnContext(ctx, "server failed", clog.String("server", addr))
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回带预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 在现有命名空间后追加，如 "routesync" -> "routesync.naming"
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整级别，对同一 New 派生出的所有 Logger 生效
	SetLevel(level Level) error

	// Flush 同步输出缓冲区
	Flush()
}
