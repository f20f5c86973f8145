// Package discovery 扫描注册中心，汇总配置分组下所有服务的实例。
//
// 每个分组先分页拉取服务名，直到取满服务端报告的总数，再逐个查询实例。
// 单个分组失败只记录日志并跳过，不影响其他分组。
package discovery

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/naming"
	"github.com/ceyewan/routesync/routing"
)

// DefaultPageSize 服务列表的默认分页大小
const DefaultPageSize = 100

// Registry 扫描用到的注册中心接口，*naming.Client 满足此接口
type Registry interface {
	GetServiceList(ctx context.Context, pageNo, pageSize int, group string, selector *naming.Selector) (*naming.ServiceList, error)
	QueryInstances(ctx context.Context, service, group, clusters string, udpPort int, healthyOnly bool) (*naming.ServiceInfo, error)
}

// Aggregator 实例聚合器
type Aggregator struct {
	registry Registry
	groups   []string
	pageSize int

	logger    clog.Logger
	tracer    oteltrace.Tracer
	instances metrics.Gauge
}

// New groups 为空时 FetchAllInstances 返回 nil；pageSize <= 0 时使用 DefaultPageSize
func New(registry Registry, groups []string, pageSize int, opts ...Option) *Aggregator {
	o := options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	gauge, _ := o.meter.Gauge(metrics.MetricDiscoveryInstances, "Instances found by the last full scan, per group")
	return &Aggregator{
		registry:  registry,
		groups:    append([]string(nil), groups...),
		pageSize:  pageSize,
		logger:    o.logger,
		tracer:    otel.Tracer("routesync/discovery"),
		instances: gauge,
	}
}

// FetchAllInstances 按配置顺序扫描每个分组，实例按返回顺序原样追加。
// 没有配置分组时返回 nil。分组失败会被跳过，只有 ctx 结束时才返回错误
func (a *Aggregator) FetchAllInstances(ctx context.Context) ([]routing.ServiceInstance, error) {
	if len(a.groups) == 0 {
		return nil, nil
	}

	ctx, span := a.tracer.Start(ctx, "discovery.fetch_all")
	defer span.End()

	var all []routing.ServiceInstance
	for _, group := range a.groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found, err := a.fetchGroup(ctx, group)
		if err != nil {
			a.logger.ErrorContext(ctx, "group skipped", clog.Error(partial(group, err)))
			continue
		}
		a.instances.Set(ctx, float64(len(found)), metrics.L(metrics.LabelGroup, group))
		all = append(all, found...)
	}

	span.SetAttributes(attribute.Int("discovery.instances", len(all)))
	a.logger.DebugContext(ctx, "full scan finished", clog.Int("instances", len(all)), clog.Strings("groups", a.groups))
	return all, nil
}

func (a *Aggregator) fetchGroup(ctx context.Context, group string) ([]routing.ServiceInstance, error) {
	services, err := a.listServices(ctx, group)
	if err != nil {
		return nil, err
	}

	var found []routing.ServiceInstance
	for _, service := range services {
		info, err := a.registry.QueryInstances(ctx, service, group, "", 0, true)
		if err != nil {
			return nil, err
		}
		found = append(found, info.Hosts...)
	}
	return found, nil
}

// listServices 第一页给出总数，之后继续翻页直到 pageSize*pageNo 覆盖总数
func (a *Aggregator) listServices(ctx context.Context, group string) ([]string, error) {
	first, err := a.registry.GetServiceList(ctx, 1, a.pageSize, group, nil)
	if err != nil {
		return nil, err
	}
	if first.Count == 0 {
		return nil, nil
	}

	services := append([]string(nil), first.Doms...)
	for pageNo := 1; first.Count > a.pageSize*pageNo; {
		pageNo++
		page, err := a.registry.GetServiceList(ctx, pageNo, a.pageSize, group, nil)
		if err != nil {
			return nil, err
		}
		services = append(services, page.Doms...)
	}
	return services, nil
}

// FetchService 查询单个服务的全部实例（不过滤健康状态），供变更监听者使用
func (a *Aggregator) FetchService(ctx context.Context, key routing.ServiceKey) ([]routing.ServiceInstance, error) {
	info, err := a.registry.QueryInstances(ctx, key.Service, key.Group, "", 0, false)
	if err != nil {
		return nil, err
	}
	return info.Hosts, nil
}
