// Package trace 初始化全局 TracerProvider，并提供事件消费与 HTTP 调用间的链路传播。
package trace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/routesync/xerrors"
)

const exportTimeout = 5 * time.Second

// Init 按配置安装全局 TracerProvider 与 W3C 传播器，返回的 shutdown 在退出时刷新剩余 span。
//
// Endpoint 为空时不创建导出器，span 仍然带有 TraceID，日志可以据此关联。
func Init(cfg *Config) (func(context.Context) error, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "trace config is required")
	}

	var opts []sdktrace.TracerProviderOption
	if cfg.Endpoint == "" {
		opts = append(opts, sdktrace.WithSampler(sdktrace.AlwaysSample()))
	} else {
		if err := validateConfig(cfg); err != nil {
			return nil, err
		}
		exporterOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(exportTimeout),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(context.Background(), exporterOpts...)
		if err != nil {
			return nil, xerrors.Wrap(err, "create otlp exporter")
		}

		opts = append(opts, sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Sampler))))
		if cfg.Batcher == "simple" {
			opts = append(opts, sdktrace.WithSyncer(exporter))
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
	}

	var resOpts []resource.Option
	if cfg.ServiceName != "" {
		resOpts = append(resOpts, resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	}
	res, err := resource.New(context.Background(), resOpts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create resource")
	}

	tp := sdktrace.NewTracerProvider(append(opts, sdktrace.WithResource(res))...)
	otel.SetTracerProvider(tp)
	setPropagator()
	return tp.Shutdown, nil
}

func validateConfig(cfg *Config) error {
	if cfg.ServiceName == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "service_name is required")
	}
	if cfg.Sampler < 0 || cfg.Sampler > 1 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "sampler must be between 0 and 1, got %v", cfg.Sampler)
	}
	switch cfg.Batcher {
	case "", "batch", "simple":
		return nil
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "batcher must be batch or simple, got %q", cfg.Batcher)
	}
}
