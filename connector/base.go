package connector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/xerrors"
)

const (
	MetricConnectAttempts = "connector_connect_attempts_total"
	MetricActive          = "connector_active"

	labelKind = "kind"
	labelName = "name"

	healthTimeout = 5 * time.Second
)

// driver 描述一种客户端的建连、探活与释放方式
type driver[T any] struct {
	// dial 创建客户端，失败时自行清理
	dial func(ctx context.Context) (T, error)
	// probe 确认客户端可用，Connect 与 HealthCheck 共用
	probe func(ctx context.Context, client T) error
	release func(client T) error
	// stale 可选，返回 true 时 Connect 会重新拨号
	stale func(client T) bool
}

// link 承载 Connector 的公共部分，具体连接器嵌入它并提供 driver
type link[T any] struct {
	kind   string
	name   string
	target clog.Field
	logger clog.Logger
	drv    driver[T]

	attempts metrics.Counter
	active   metrics.Gauge
	labels   []metrics.Label

	mu      sync.RWMutex
	client  T
	live    bool
	healthy atomic.Bool
}

func newLink[T any](kind, name string, target clog.Field, opt *options) *link[T] {
	l := &link[T]{
		kind:   kind,
		name:   name,
		target: target,
		logger: opt.logger.With(clog.String("connector", kind), clog.String("name", name)),
		labels: []metrics.Label{metrics.L(labelKind, kind), metrics.L(labelName, name)},
	}

	var err error
	if l.attempts, err = opt.meter.Counter(MetricConnectAttempts, "Connection attempts by outcome."); err != nil {
		l.attempts, _ = metrics.Discard().Counter(MetricConnectAttempts, "")
	}
	if l.active, err = opt.meter.Gauge(MetricActive, "Whether the connector currently holds a live connection."); err != nil {
		l.active, _ = metrics.Discard().Gauge(MetricActive, "")
	}
	return l
}

func (l *link[T]) fail(sentinel, err error) error {
	return xerrors.Wrapf(xerrors.Join(sentinel, err), "%s connector[%s]", l.kind, l.name)
}

func (l *link[T]) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.live && (l.drv.stale == nil || !l.drv.stale(l.client)) {
		return nil
	}

	l.logger.Info("connecting", l.target)
	client, err := l.drv.dial(ctx)
	if err == nil {
		if err = l.drv.probe(ctx, client); err != nil {
			_ = l.drv.release(client)
		}
	}

	outcome := metrics.L(metrics.LabelOutcome, metrics.ErrorOutcome(err))
	l.attempts.Inc(ctx, append(append([]metrics.Label(nil), l.labels...), outcome)...)
	if err != nil {
		l.logger.Error("connect failed", l.target, clog.Error(err))
		return l.fail(ErrConnection, err)
	}

	l.client, l.live = client, true
	l.healthy.Store(true)
	l.active.Set(ctx, 1, l.labels...)
	l.logger.Info("connected", l.target)
	return nil
}

func (l *link[T]) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.healthy.Store(false)
	if !l.live {
		return nil
	}
	client := l.client
	var zero T
	l.client, l.live = zero, false
	l.active.Set(context.Background(), 0, l.labels...)

	if err := l.drv.release(client); err != nil {
		l.logger.Error("close failed", clog.Error(err))
		return xerrors.Wrapf(err, "%s connector[%s]", l.kind, l.name)
	}
	l.logger.Info("closed")
	return nil
}

func (l *link[T]) HealthCheck(ctx context.Context) error {
	l.mu.RLock()
	client, live := l.client, l.live
	l.mu.RUnlock()

	if !live {
		l.healthy.Store(false)
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if err := l.drv.probe(ctx, client); err != nil {
		l.healthy.Store(false)
		l.logger.Warn("health check failed", clog.Error(err))
		return l.fail(ErrHealthCheck, err)
	}
	l.healthy.Store(true)
	return nil
}

func (l *link[T]) IsHealthy() bool {
	return l.healthy.Load()
}

func (l *link[T]) Name() string {
	return l.name
}

// GetClient 未连接时返回零值
func (l *link[T]) GetClient() T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}
