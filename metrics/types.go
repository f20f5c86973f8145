// Package metrics 为 routesync 提供统一的指标收集能力。
// 基于 OpenTelemetry 构建，通过 Prometheus exporter 暴露，提供 Counter、Gauge、Histogram 三种接口。
//
//	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "routesync"})
//	if err != nil {
//	    return err
//	}
//	defer meter.Shutdown(ctx)
//
//	rebuilds, _ := meter.Counter(metrics.MetricSnapshotRebuilds, "快照重建次数")
//	rebuilds.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
//
// Enabled 为 false 时返回 noop 实现，调用方无需判空。
package metrics

import "context"

// Counter 单调递增的计数器，例如请求数、失败次数
type Counter interface {
	// Inc 计数加 1
	Inc(ctx context.Context, labels ...Label)
	// Add 计数加 val，负数会被忽略
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可增可减的瞬时值，例如当前路由数、已订阅服务数
type Gauge interface {
	// Set 覆盖为给定值
	Set(ctx context.Context, val float64, labels ...Label)
	// Inc 在当前值上加 1
	Inc(ctx context.Context, labels ...Label)
	// Dec 在当前值上减 1
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 记录值的分布，例如请求耗时
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂
//
// 同一个 Meter 创建的指标可在多个 goroutine 中并发使用。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 刷新并关闭，通常在进程退出时调用
	Shutdown(ctx context.Context) error
}

// MetricOption 指标创建选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	// Unit 单位，建议使用 UCUM 代码，如 "s"、"By"
	Unit string
	// Buckets 直方图桶边界，仅对 Histogram 生效
	Buckets []float64
}

// WithUnit 设置指标单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}
