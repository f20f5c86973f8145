package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/xerrors"
)

const (
	instrumentationName = "routesync"
	runtimeReadInterval = 15 * time.Second
)

// New 创建 Meter 并注册为全局 MeterProvider。Enabled 为 false 时返回 Discard()
func New(cfg *Config, opts ...Option) (Meter, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "metrics config is required")
	}
	if !cfg.Enabled {
		return Discard(), nil
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	provider, err := newProvider(cfg, o)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(provider)

	if cfg.Runtime {
		err := runtime.Start(runtime.WithMeterProvider(provider), runtime.WithMinimumReadMemStatsInterval(runtimeReadInterval))
		if err != nil {
			o.logger.Warn("runtime instrumentation disabled", clog.Error(err))
		}
	}

	m := &otelMeter{meter: provider.Meter(instrumentationName), provider: provider}
	if cfg.Port > 0 && cfg.Path != "" {
		m.scrape = startScrapeServer(cfg.Port, cfg.Path, o.logger)
	}
	return m, nil
}

func newProvider(cfg *Config, o *options) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.Version),
	))
	if err != nil {
		return nil, xerrors.Wrap(err, "build metrics resource")
	}

	var exporterOpts []prometheus.Option
	if o.registerer != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(o.registerer))
	}
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create prometheus exporter")
	}
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res)), nil
}

// startScrapeServer 在独立端口暴露 Prometheus 指标，管理端已挂载 /metrics 时不需要
func startScrapeServer(port int, path string, logger clog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics scrape endpoint listening", clog.String("addr", srv.Addr), clog.String("path", path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics scrape endpoint stopped", clog.Error(err))
		}
	}()
	return srv
}

type otelMeter struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	scrape   *http.Server
}

func (m *otelMeter) Counter(name, desc string, opts ...MetricOption) (Counter, error) {
	mo := collectOptions(opts)
	c, err := m.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(mo.Unit))
	if err != nil {
		return nil, xerrors.Wrapf(err, "counter %s", name)
	}
	return counter{c}, nil
}

func (m *otelMeter) Gauge(name, desc string, opts ...MetricOption) (Gauge, error) {
	mo := collectOptions(opts)
	g, err := m.meter.Float64Gauge(name, metric.WithDescription(desc), metric.WithUnit(mo.Unit))
	if err != nil {
		return nil, xerrors.Wrapf(err, "gauge %s", name)
	}
	return &gauge{g: g, current: make(map[string]float64)}, nil
}

func (m *otelMeter) Histogram(name, desc string, opts ...MetricOption) (Histogram, error) {
	mo := collectOptions(opts)
	hopts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit(mo.Unit)}
	if len(mo.Buckets) > 0 {
		hopts = append(hopts, metric.WithExplicitBucketBoundaries(mo.Buckets...))
	}
	h, err := m.meter.Float64Histogram(name, hopts...)
	if err != nil {
		return nil, xerrors.Wrapf(err, "histogram %s", name)
	}
	return histogram{h}, nil
}

func (m *otelMeter) Shutdown(ctx context.Context) error {
	var scrapeErr error
	if m.scrape != nil {
		scrapeErr = m.scrape.Shutdown(ctx)
	}
	return xerrors.Combine(scrapeErr, m.provider.Shutdown(ctx))
}

type counter struct{ c metric.Int64Counter }

func (c counter) Inc(ctx context.Context, labels ...Label) {
	c.c.Add(ctx, 1, attrs(labels))
}

func (c counter) Add(ctx context.Context, val float64, labels ...Label) {
	if val >= 0 {
		c.c.Add(ctx, int64(val), attrs(labels))
	}
}

// gauge 按标签组保存当前值，Inc/Dec 在其上累加后整体上报
type gauge struct {
	g       metric.Float64Gauge
	mu      sync.Mutex
	current map[string]float64
}

func (g *gauge) Set(ctx context.Context, val float64, labels ...Label) {
	g.update(ctx, labels, func(float64) float64 { return val })
}

func (g *gauge) Inc(ctx context.Context, labels ...Label) {
	g.update(ctx, labels, func(v float64) float64 { return v + 1 })
}

func (g *gauge) Dec(ctx context.Context, labels ...Label) {
	g.update(ctx, labels, func(v float64) float64 { return v - 1 })
}

func (g *gauge) update(ctx context.Context, labels []Label, fn func(float64) float64) {
	key := seriesKey(labels)
	g.mu.Lock()
	val := fn(g.current[key])
	g.current[key] = val
	g.mu.Unlock()
	g.g.Record(ctx, val, attrs(labels))
}

type histogram struct{ h metric.Float64Histogram }

func (h histogram) Record(ctx context.Context, val float64, labels ...Label) {
	h.h.Record(ctx, val, attrs(labels))
}

// Discard 丢弃所有记录，用于测试和关闭指标的场景
func Discard() Meter { return discard{} }

// discard 同时实现 Meter 与三种指标
type discard struct{}

func (discard) Counter(string, string, ...MetricOption) (Counter, error)     { return discard{}, nil }
func (discard) Gauge(string, string, ...MetricOption) (Gauge, error)         { return discard{}, nil }
func (discard) Histogram(string, string, ...MetricOption) (Histogram, error) { return discard{}, nil }
func (discard) Shutdown(context.Context) error                               { return nil }
func (discard) Inc(context.Context, ...Label)                                {}
func (discard) Dec(context.Context, ...Label)                                {}
func (discard) Add(context.Context, float64, ...Label)                       {}
func (discard) Set(context.Context, float64, ...Label)                       {}
func (discard) Record(context.Context, float64, ...Label)                    {}

func collectOptions(opts []MetricOption) MetricOptions {
	var mo MetricOptions
	for _, opt := range opts {
		opt(&mo)
	}
	return mo
}

func attrs(labels []Label) metric.MeasurementOption {
	kv := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		kv[i] = attribute.String(l.Key, l.Value)
	}
	return metric.WithAttributes(kv...)
}

func seriesKey(labels []Label) string {
	var b strings.Builder
	for _, l := range labels {
		b.WriteString(l.Key)
		b.WriteByte('=')
		b.WriteString(l.Value)
		b.WriteByte(';')
	}
	return b.String()
}
