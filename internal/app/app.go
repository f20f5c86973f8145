// Package app 按配置装配 routesync 进程：
//
//	serverlist -> naming -> discovery -> syncer/store -> provider -> mirror
//	events(nats|kafka|poll) -> bus -> listener -> syncer -> hub
//	config watch(gateway) -> hub
//	admin(/config /readyz /metrics)
package app

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/routesync/admin"
	"github.com/ceyewan/routesync/breaker"
	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/config"
	"github.com/ceyewan/routesync/connector"
	"github.com/ceyewan/routesync/discovery"
	"github.com/ceyewan/routesync/events"
	"github.com/ceyewan/routesync/internal/lifecycle"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/mirror"
	"github.com/ceyewan/routesync/naming"
	"github.com/ceyewan/routesync/provider"
	"github.com/ceyewan/routesync/reload"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/security"
	"github.com/ceyewan/routesync/serverlist"
	"github.com/ceyewan/routesync/store"
	"github.com/ceyewan/routesync/syncer"
	"github.com/ceyewan/routesync/trace"
	"github.com/ceyewan/routesync/xerrors"
)

const (
	// GatewayKey 热更新监听的配置段
	GatewayKey = "gateway"

	stopTimeout = 10 * time.Second
)

// 事件源与镜像后端名称
const (
	SourceNATS  = "nats"
	SourceKafka = "kafka"
	SourcePoll  = "poll"

	BackendRedis = "redis"
	BackendEtcd  = "etcd"
)

// App 装配好的进程
type App struct {
	cfg    *config.AppConfig
	loader config.Loader
	logger clog.Logger
	meter  metrics.Meter

	lc       *lifecycle.Manager
	resolver *serverlist.Resolver
	client   *naming.Client
	bus      *events.Bus
	hub      *reload.Hub
	provider *provider.Provider
	sources  []events.Source
	admin    *admin.Server

	gateway atomic.Pointer[routing.GatewayOptions]
}

// New 构建全部组件，不建立外部连接，也不访问注册中心
func New(ctx context.Context, loader config.Loader, cfg *config.AppConfig, logger clog.Logger) (*App, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "app config is nil")
	}
	if logger == nil {
		logger = clog.Discard()
	}
	a := &App{cfg: cfg, loader: loader, logger: logger, lc: lifecycle.New(logger)}
	a.gateway.Store(cfg.Gateway)

	if err := a.buildTelemetry(); err != nil {
		return nil, err
	}
	if err := a.buildNaming(ctx); err != nil {
		return nil, err
	}

	agg := discovery.New(a.client, cfg.Discovery.Groups, cfg.Discovery.Count,
		discovery.WithLogger(logger), discovery.WithMeter(a.meter))

	a.hub = reload.NewHub()
	a.bus = events.NewBus(events.WithLogger(logger), events.WithMeter(a.meter))
	st := store.New(store.WithLogger(logger), store.WithMeter(a.meter))
	sc := syncer.New(agg, st, a.bus, a.hub, a.gateway.Load, syncer.WithLogger(logger))

	sinks, err := a.buildMirror()
	if err != nil {
		return nil, err
	}

	a.provider = provider.New(sc, a.hub,
		provider.WithLogger(logger),
		provider.WithMeter(a.meter),
		provider.WithDelay(cfg.Discovery.DelayDuration()),
		provider.WithSinks(sinks...),
	)
	a.lc.Register(lifecycle.Hook{
		Name:  "provider",
		Phase: lifecycle.PhaseComponent,
		Start: func(ctx context.Context) error {
			snap, err := a.provider.GetConfig(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("initial snapshot published",
				clog.Uint64("revision", snap.Revision), clog.Int("routes", len(snap.Routes)))
			return nil
		},
		Stop: a.provider.Close,
	})
	a.lc.OnStop("bus", lifecycle.PhaseComponent, func(context.Context) error {
		a.bus.Close()
		return nil
	})

	if err := a.buildSources(agg); err != nil {
		return nil, err
	}
	return a, a.buildAdmin()
}

func (a *App) buildTelemetry() error {
	name := a.cfg.App.Name
	if name == "" {
		name = "routesync"
	}

	if a.cfg.Metrics.ServiceName == "" {
		a.cfg.Metrics.ServiceName = name
	}
	meter, err := metrics.New(&a.cfg.Metrics, metrics.WithLogger(a.logger))
	if err != nil {
		return xerrors.Wrap(err, "init metrics")
	}
	a.meter = meter
	a.lc.OnStop("metrics", lifecycle.PhaseTelemetry, meter.Shutdown)

	if a.cfg.Trace.ServiceName == "" {
		a.cfg.Trace.ServiceName = name
	}
	shutdown, err := trace.Init(&a.cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init trace")
	}
	a.lc.OnStop("trace", lifecycle.PhaseTelemetry, shutdown)
	return nil
}

func (a *App) buildNaming(ctx context.Context) error {
	nc := a.cfg.Naming

	resolver, err := serverlist.New(ctx, serverlist.Config{
		ServerAddresses: nc.ServerAddresses,
		Endpoint:        nc.Endpoint,
		ContextPath:     nc.ContextPath,
		Namespace:       nc.Namespace,
		ServerPort:      nc.ServerPort,
		RefreshInterval: nc.RefreshInterval,
	}, serverlist.WithLogger(a.logger))
	if err != nil {
		return xerrors.Wrap(err, "init server list")
	}
	a.resolver = resolver

	opts := []naming.Option{naming.WithLogger(a.logger), naming.WithMeter(a.meter)}

	switch {
	case nc.AccessToken != "":
		opts = append(opts, naming.WithTokenProvider(security.Static(nc.AccessToken)))
	case nc.UserName != "":
		login, err := security.NewLoginProvider(resolver, nc.UserName, nc.Password,
			security.WithLogger(a.logger), security.WithTimeout(nc.Timeout))
		if err != nil {
			return xerrors.Wrap(err, "init login provider")
		}
		opts = append(opts, naming.WithTokenProvider(login))
	}

	if nc.Breaker.Enabled {
		b, err := breaker.New(&nc.Breaker, breaker.WithLogger(a.logger), breaker.WithMeter(a.meter))
		if err != nil {
			return xerrors.Wrap(err, "init breaker")
		}
		opts = append(opts, naming.WithBreaker(b))
	}

	a.client = naming.New(naming.Config{
		Namespace:   nc.Namespace,
		AccessKey:   nc.AccessKey,
		SecretKey:   nc.SecretKey,
		AppName:     nc.AppName,
		Timeout:     nc.Timeout,
		DomainRetry: nc.DomainRetry,
	}, resolver, opts...)
	return nil
}

// buildMirror 为每个镜像后端创建连接器和 Sink，连接在启动阶段建立
func (a *App) buildMirror() ([]provider.Sink, error) {
	mc := a.cfg.Mirror
	if len(mc.Backends) == 0 {
		return nil, nil
	}

	codec, err := mirror.NewCodec(mc.Codec)
	if err != nil {
		return nil, err
	}
	connOpts := []connector.Option{connector.WithLogger(a.logger), connector.WithMeter(a.meter)}
	mirrorOpts := []mirror.Option{mirror.WithLogger(a.logger), mirror.WithCodec(codec)}

	var sinks mirror.Multi
	for _, backend := range mc.Backends {
		switch strings.ToLower(backend) {
		case BackendRedis:
			conn, err := connector.NewRedis(&mc.Redis, connOpts...)
			if err != nil {
				return nil, xerrors.Wrap(err, "init redis connector")
			}
			a.registerConnector(conn)
			sink, err := mirror.NewRedisSink(conn, mc.Key, mc.Channel, mirrorOpts...)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		case BackendEtcd:
			conn, err := connector.NewEtcd(&mc.Etcd, connOpts...)
			if err != nil {
				return nil, xerrors.Wrap(err, "init etcd connector")
			}
			a.registerConnector(conn)
			sink, err := mirror.NewEtcdSink(conn, mc.Key, mirrorOpts...)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		default:
			return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown mirror backend %q", backend)
		}
	}
	return []provider.Sink{sinks}, nil
}

func (a *App) buildSources(agg *discovery.Aggregator) error {
	ec := a.cfg.Events
	opts := []events.Option{events.WithLogger(a.logger), events.WithMeter(a.meter)}

	for _, name := range ec.Sources {
		switch strings.ToLower(name) {
		case SourceNATS:
			conn, err := connector.NewNATS(&ec.NATS, connector.WithLogger(a.logger), connector.WithMeter(a.meter))
			if err != nil {
				return xerrors.Wrap(err, "init nats connector")
			}
			a.registerConnector(conn)
			a.sources = append(a.sources, events.NewNATSSource(conn, ec.Subject, a.bus, opts...))
		case SourceKafka:
			conn, err := connector.NewKafka(&ec.Kafka,
				connector.WithLogger(a.logger),
				connector.WithMeter(a.meter),
				connector.WithKafkaOptions(events.KafkaConsumeOptions(ec.Topic, ec.ConsumerGroup)...),
			)
			if err != nil {
				return xerrors.Wrap(err, "init kafka connector")
			}
			a.registerConnector(conn)
			a.sources = append(a.sources, events.NewKafkaSource(conn, ec.Topic, ec.ConsumerGroup, a.bus, opts...))
		case SourcePoll:
			a.sources = append(a.sources, events.NewPoller(a.bus, agg, a.bus, ec.PollInterval, opts...))
		default:
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown event source %q", name)
		}
	}
	if len(a.sources) == 0 {
		a.logger.Warn("no event source configured, relying on periodic full refresh")
	}
	return nil
}

func (a *App) buildAdmin() error {
	if a.cfg.Admin.ServiceName == "" {
		a.cfg.Admin.ServiceName = a.cfg.Metrics.ServiceName + "-admin"
	}
	httpMetrics, err := metrics.NewHTTPMetrics(a.meter)
	if err != nil {
		return xerrors.Wrap(err, "init http metrics")
	}
	a.admin, err = admin.New(a.cfg.Admin, a.provider, httpMetrics,
		admin.WithLogger(a.logger), admin.WithProber(a.client))
	return err
}

func (a *App) registerConnector(conn connector.Connector) {
	a.lc.Register(lifecycle.Hook{
		Name:  conn.Name(),
		Phase: lifecycle.PhaseConnector,
		Start: conn.Connect,
		Stop:  func(context.Context) error { return conn.Close() },
	})
}

// Provider 快照提供者
func (a *App) Provider() *provider.Provider {
	return a.provider
}

// Run 建立连接并发布首个快照，随后运行后台任务直到 ctx 结束，最后逆序关闭。
// 首个快照构建失败时直接返回错误
func (a *App) Run(ctx context.Context) error {
	if err := a.lc.StartAll(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		if err := a.lc.StopAll(stopCtx); err != nil {
			a.logger.Error("shutdown finished with errors", clog.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.resolver.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := a.provider.Run(gctx); err != nil && !xerrors.Is(err, provider.ErrClosed) {
			return err
		}
		return nil
	})
	for _, src := range a.sources {
		g.Go(func() error {
			if err := src.Run(gctx); err != nil {
				return xerrors.Wrapf(err, "event source %s", src.Name())
			}
			return nil
		})
	}
	g.Go(func() error {
		return a.admin.Run(gctx)
	})
	if a.loader != nil {
		ch, err := a.loader.Watch(gctx, GatewayKey)
		if err != nil {
			return xerrors.Wrap(err, "watch gateway config")
		}
		g.Go(func() error {
			a.watchGateway(gctx, ch)
			return nil
		})
	}

	a.logger.Info("routesync started", clog.Int("sources", len(a.sources)))
	return g.Wait()
}

// watchGateway 网关选项变化后替换生效值并触发重建
func (a *App) watchGateway(ctx context.Context, ch <-chan config.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.applyGateway(ev)
		}
	}
}

func (a *App) applyGateway(ev config.Event) {
	next := &routing.GatewayOptions{}
	if err := a.loader.UnmarshalKey(GatewayKey, next); err != nil {
		a.logger.Error("failed to decode gateway options, keeping previous", clog.Error(err))
		return
	}
	a.gateway.Store(next)
	a.logger.Info("gateway options changed", clog.String("source", ev.Source))
	a.hub.Fire()
}
