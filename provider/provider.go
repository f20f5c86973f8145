// Package provider 维护当前生效的路由快照。
//
// 首次 GetConfig 同步构建快照并订阅变更 Hub；Hub 每次触发都会在互斥锁内重建，
// 重建期间到达的多个触发合并为一次。发布时先换上新快照，再触发旧快照的变更信号，
// 所以持有旧快照的消费者在被通知时总能读到更新的版本。
//
//	p := provider.New(syncer, hub, provider.WithDelay(10*time.Second))
//	snap, err := p.GetConfig(ctx) // 失败时应终止启动
//	go p.Run(ctx)
//	<-snap.ChangeSignal().Done()
package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/reload"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/trace"
	"github.com/ceyewan/routesync/xerrors"
)

// Source 快照的数据来源，*syncer.Syncer 满足此接口
type Source interface {
	// Load 返回当前路由表的快照，路由表为空或网关选项变化时先做全量扫描
	Load(ctx context.Context) (*routing.ConfigSnapshot, error)
	// Refresh 全量扫描并更新路由表
	Refresh(ctx context.Context) error
	// Clear 清空路由表并取消所有订阅
	Clear(ctx context.Context) error
}

// Sink 快照发布后的下游，例如写入 Redis 或 etcd 供其他网关副本读取
type Sink interface {
	Publish(ctx context.Context, snapshot *routing.ConfigSnapshot) error
}

// State Provider 状态
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

const (
	outcomeAbsorbed = "absorbed"
	outcomeSkipped  = "skipped"
)

// Provider 快照提供者，可并发使用
type Provider struct {
	source Source
	hub    *reload.Hub
	delay  time.Duration
	sinks  []Sink

	logger   clog.Logger
	tracer   oteltrace.Tracer
	rebuilds metrics.Counter
	routes   metrics.Gauge

	ctx    context.Context
	cancel context.CancelFunc

	snapshot atomic.Pointer[routing.ConfigSnapshot]
	state    atomic.Int32
	triggers atomic.Uint64
	lastErr  atomic.Pointer[error]

	initMu  sync.Mutex
	watcher *reload.Watcher
	closed  bool

	// mu 串行化重建，保护以下字段
	mu       sync.Mutex
	revision uint64
	covered  uint64
}

// New 创建 Provider，此时不做任何 I/O
func New(source Source, hub *reload.Hub, opts ...Option) *Provider {
	o := options{logger: clog.Discard(), meter: metrics.Discard(), delay: DefaultDelay}
	for _, opt := range opts {
		opt(&o)
	}

	rebuilds, _ := o.meter.Counter(metrics.MetricSnapshotRebuilds, "Snapshot rebuild attempts by outcome")
	routes, _ := o.meter.Gauge(metrics.MetricSnapshotRoutes, "Routes in the published snapshot")

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		source:   source,
		hub:      hub,
		delay:    o.delay,
		sinks:    o.sinks,
		logger:   o.logger,
		tracer:   otel.Tracer("routesync/provider"),
		rebuilds: rebuilds,
		routes:   routes,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// GetConfig 返回当前快照。首次调用订阅 Hub 并同步构建，构建失败返回 Initial 为 true 的
// ConfigLoadError；之后的调用只读取已发布的快照
func (p *Provider) GetConfig(ctx context.Context) (*routing.ConfigSnapshot, error) {
	if snap := p.snapshot.Load(); snap != nil {
		return snap, nil
	}

	p.initMu.Lock()
	defer p.initMu.Unlock()

	if snap := p.snapshot.Load(); snap != nil {
		return snap, nil
	}
	if p.closed {
		return nil, ErrClosed
	}

	// 先订阅再构建，构建期间的变化不会丢失
	if p.watcher == nil {
		p.watcher = reload.OnChange(p.hub.Signal, p.onChange)
	}

	if err := p.rebuild(ctx, p.triggers.Add(1), true); err != nil {
		p.watcher.Stop()
		p.watcher = nil
		return nil, err
	}
	return p.snapshot.Load(), nil
}

// Snapshot 当前快照，首次构建完成前为 nil
func (p *Provider) Snapshot() *routing.ConfigSnapshot {
	return p.snapshot.Load()
}

// State 当前状态
func (p *Provider) State() State {
	return State(p.state.Load())
}

// LastError 最近一次构建或刷新失败的原因，成功发布后清空
func (p *Provider) LastError() error {
	if e := p.lastErr.Load(); e != nil {
		return *e
	}
	return nil
}

// Rebuild 请求一次重建。已有重建在进行时，本次请求在其完成后只在必要时再重建一次。
// 首次构建完成前调用无效果
func (p *Provider) Rebuild(ctx context.Context) error {
	return p.rebuild(ctx, p.triggers.Add(1), false)
}

func (p *Provider) onChange() {
	if err := p.Rebuild(p.ctx); err != nil {
		p.logger.Warn("rebuild triggered by change failed", clog.Error(err))
	}
}

// rebuild gen 是触发时领取的代号。持锁后若已发布的快照开始构建时已看到 gen，
// 本次触发被吸收；否则记录开始时的代号并重新构建
func (p *Provider) rebuild(ctx context.Context, gen uint64, initial bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.snapshot.Load()
	if current == nil && !initial {
		p.rebuilds.Inc(ctx, metrics.L(metrics.LabelOutcome, outcomeSkipped))
		return nil
	}
	if current != nil && p.covered >= gen {
		p.rebuilds.Inc(ctx, metrics.L(metrics.LabelOutcome, outcomeAbsorbed))
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "provider.rebuild", oteltrace.WithAttributes(attribute.Bool("provider.initial", current == nil)))
	defer span.End()

	start := p.triggers.Load()
	built, err := p.source.Load(ctx)
	if err != nil {
		trace.MarkSpanError(span, err)
		p.rebuilds.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
		p.lastErr.Store(&err)
		if current == nil {
			p.logger.ErrorContext(ctx, "initial config load failed", clog.Error(err))
			return loadError(true, err)
		}
		p.state.Store(int32(StateDegraded))
		p.logger.ErrorContext(ctx, "config reload failed, keep serving previous snapshot",
			clog.Uint64("revision", current.Revision), clog.Error(err))
		return loadError(false, err)
	}

	p.covered = start
	p.publish(ctx, built)
	return nil
}

// publish 调用方持有 mu
func (p *Provider) publish(ctx context.Context, built *routing.ConfigSnapshot) {
	p.revision++
	next := routing.NewSnapshot(built.Routes, built.Clusters, p.revision, reload.NewSignal())

	old := p.snapshot.Swap(next)
	p.state.Store(int32(StateReady))
	p.lastErr.Store(nil)
	if old != nil {
		old.ChangeSignal().Fire()
	}

	p.rebuilds.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
	p.routes.Set(ctx, float64(len(next.Routes)))
	p.logger.InfoContext(ctx, "snapshot published",
		clog.Uint64("revision", next.Revision), clog.Int("routes", len(next.Routes)), clog.Int("clusters", len(next.Clusters)))

	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, next); err != nil {
			p.logger.WarnContext(ctx, "failed to mirror snapshot", clog.Uint64("revision", next.Revision), clog.Error(err))
		}
	}
}

// Run 每隔 delay 做一次全量刷新并触发 Hub，ctx 结束后在一个间隔内返回
func (p *Provider) Run(ctx context.Context) error {
	p.logger.Info("refresh loop started", clog.Duration("delay", p.delay))
	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("refresh loop stopped")
			return nil
		case <-p.ctx.Done():
			return ErrClosed
		case <-timer.C:
		}

		if err := p.source.Refresh(ctx); err != nil {
			p.lastErr.Store(&err)
			p.rebuilds.Inc(ctx, metrics.L(metrics.LabelOutcome, metrics.OutcomeError))
			if p.snapshot.Load() != nil {
				p.state.Store(int32(StateDegraded))
			}
			p.logger.Error("periodic refresh failed", clog.Error(err))
		} else {
			p.hub.Fire()
		}
		timer.Reset(p.delay)
	}
}

// Close 停止监听 Hub 与后台循环，并清空路由表
func (p *Provider) Close(ctx context.Context) error {
	p.initMu.Lock()
	if p.closed {
		p.initMu.Unlock()
		return nil
	}
	p.closed = true
	watcher := p.watcher
	p.watcher = nil
	p.initMu.Unlock()

	p.cancel()
	if watcher != nil {
		watcher.Stop()
	}

	if err := p.source.Clear(ctx); err != nil {
		return xerrors.Wrap(err, "clear routes")
	}
	return nil
}
