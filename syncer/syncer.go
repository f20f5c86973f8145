// Package syncer 把注册中心的实例同步进路由表。
//
// Refresh 做一次全量扫描，按服务分组后逐个构建路由并写入 store，
// 新安装的监听者会订阅该服务的变更事件。之后单个服务的变化由监听者通过
// Apply / Remove 增量写回，不再触发全量扫描。
package syncer

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/config"
	"github.com/ceyewan/routesync/events"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/store"
	"github.com/ceyewan/routesync/xerrors"
)

// Discovery 全量扫描与单服务查询
type Discovery interface {
	events.Fetcher
	FetchAllInstances(ctx context.Context) ([]routing.ServiceInstance, error)
}

// OptionsFunc 返回当前生效的网关选项，配置热更新后下一次构建即可读到新值。
// 返回 nil 表示未配置 gateway 段
type OptionsFunc func() *routing.GatewayOptions

// Syncer 实现 events.Updater，是监听者修改路由表的唯一入口
type Syncer struct {
	discovery  Discovery
	store      *store.Store
	subscriber events.Subscriber
	notifier   events.Notifier
	gateway    OptionsFunc
	formatter  routing.Formatter

	logger       clog.Logger
	tracer       oteltrace.Tracer
	listenerOpts []events.Option

	// applied 最近一次全量构建使用的网关选项
	applied atomic.Pointer[routing.GatewayOptions]
}

// New 创建 Syncer，notifier 通常是 reload.Hub
func New(discovery Discovery, st *store.Store, subscriber events.Subscriber, notifier events.Notifier, gateway OptionsFunc, opts ...Option) *Syncer {
	o := options{logger: clog.Discard(), formatter: routing.DefaultFormatter}
	for _, opt := range opts {
		opt(&o)
	}
	return &Syncer{
		discovery:    discovery,
		store:        st,
		subscriber:   subscriber,
		notifier:     notifier,
		gateway:      gateway,
		formatter:    o.formatter,
		logger:       o.logger,
		tracer:       otel.Tracer("routesync/syncer"),
		listenerOpts: o.listenerOpts,
	}
}

// Load 路由表非空且网关选项未变时直接返回其快照。
// 路由表为空或选项已被替换时先做一次全量扫描，所有条目按新选项重建
func (s *Syncer) Load(ctx context.Context) (*routing.ConfigSnapshot, error) {
	if s.store.Len() > 0 && s.gateway() == s.applied.Load() {
		return s.store.Snapshot(), nil
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.store.Snapshot(), nil
}

// Refresh 全量扫描并写入路由表。扫描不到实例时路由表保持不变
func (s *Syncer) Refresh(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "syncer.refresh")
	defer span.End()

	instances, err := s.discovery.FetchAllInstances(ctx)
	if err != nil {
		return xerrors.Wrap(err, "fetch all instances")
	}
	if len(instances) == 0 {
		s.logger.InfoContext(ctx, "no instance discovered")
		return nil
	}

	opts := s.gateway()
	builder, err := s.builder(opts)
	if err != nil {
		return err
	}

	grouped, order := groupByService(instances)
	for _, key := range order {
		route, cluster := builder.Build(key, grouped[key])
		listener := events.NewEntryListener(key, s.discovery, s, s.notifier, s.listenerOpts...)
		if !s.store.Upsert(key, route, cluster, listener) {
			continue
		}
		if err := s.subscriber.Subscribe(ctx, key.Service, key.Group, listener); err != nil {
			s.logger.ErrorContext(ctx, "failed to subscribe service", clog.String("service", key.String()), clog.Error(err))
		}
	}

	s.applied.Store(opts)

	span.SetAttributes(attribute.Int("syncer.services", len(order)), attribute.Int("syncer.instances", len(instances)))
	s.logger.DebugContext(ctx, "refreshed", clog.Int("services", len(order)), clog.Int("instances", len(instances)))
	return nil
}

// Apply 用最新实例重建一个服务的路由和集群。条目已被移除时会重新插入，
// 监听者留到下一次全量扫描时安装
func (s *Syncer) Apply(ctx context.Context, key routing.ServiceKey, instances []routing.ServiceInstance) error {
	builder, err := s.builder(s.gateway())
	if err != nil {
		return err
	}
	route, cluster := builder.Build(key, instances)
	s.store.Upsert(key, route, cluster, nil)
	return nil
}

// Remove 移除条目并取消其监听者的订阅
func (s *Syncer) Remove(ctx context.Context, key routing.ServiceKey) error {
	entry, ok := s.store.RemoveByKey(key)
	if !ok || entry.Listener == nil {
		return nil
	}
	if err := s.subscriber.Unsubscribe(ctx, key.Service, key.Group, entry.Listener); err != nil {
		return xerrors.Wrapf(err, "unsubscribe %s", key)
	}
	return nil
}

// Clear 清空路由表并取消所有订阅
func (s *Syncer) Clear(ctx context.Context) error {
	return s.store.Clear(ctx, s.subscriber)
}

func (s *Syncer) builder(opts *routing.GatewayOptions) (*routing.Builder, error) {
	if opts == nil {
		return nil, &config.MissingConfigurationError{Section: "gateway", Hint: "please set your gateway options"}
	}
	return routing.NewBuilder(opts, s.formatter), nil
}

// groupByService 按 group@@service 分组，order 保留首次出现的顺序
func groupByService(instances []routing.ServiceInstance) (map[routing.ServiceKey][]routing.ServiceInstance, []routing.ServiceKey) {
	grouped := make(map[routing.ServiceKey][]routing.ServiceInstance)
	var order []routing.ServiceKey
	for _, inst := range instances {
		key := routing.ParseGroupedName(inst.ServiceName)
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], inst)
	}
	return grouped, order
}
