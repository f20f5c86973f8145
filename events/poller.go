package events

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/routing"
)

// DefaultPollInterval Poller 的默认轮询间隔
const DefaultPollInterval = 5 * time.Second

// KeySource 提供需要轮询的服务，通常是 *Bus
type KeySource interface {
	Keys() []routing.ServiceKey
}

// Poller 没有推送通道时的事件源：定期查询已订阅服务的实例，
// 实例校验和变化时产生 InstanceChangeEvent。首次查询只记录基线
type Poller struct {
	keys      KeySource
	fetcher   Fetcher
	publisher Publisher
	interval  time.Duration
	logger    clog.Logger
	received  metrics.Counter

	mu   sync.Mutex
	sums map[routing.ServiceKey]uint64
}

// NewPoller interval 非正数时使用 DefaultPollInterval
func NewPoller(keys KeySource, fetcher Fetcher, publisher Publisher, interval time.Duration, opts ...Option) *Poller {
	o := applyOptions(opts)
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	received, _ := o.meter.Counter(metrics.MetricEventsReceived, "Instance change events received from external sources")
	return &Poller{
		keys:      keys,
		fetcher:   fetcher,
		publisher: publisher,
		interval:  interval,
		logger:    o.logger.WithNamespace("poller"),
		received:  received,
		sums:      make(map[routing.ServiceKey]uint64),
	}
}

func (p *Poller) Name() string { return "poll" }

// Run 每个间隔轮询一次，直到 ctx 结束
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", clog.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll 执行一轮比对，返回发布的事件数
func (p *Poller) Poll(ctx context.Context) int {
	keys := p.keys.Keys()
	live := make(map[routing.ServiceKey]struct{}, len(keys))
	published := 0

	for _, key := range keys {
		live[key] = struct{}{}

		instances, err := p.fetcher.FetchService(ctx, key)
		if err != nil {
			p.logger.WarnContext(ctx, "poll failed", clog.String("service", key.String()), clog.Error(err))
			continue
		}

		sum := Checksum(instances)
		p.mu.Lock()
		prev, seen := p.sums[key]
		p.sums[key] = sum
		p.mu.Unlock()

		if !seen || prev == sum {
			continue
		}

		ev := InstanceChangeEvent{ServiceName: key.Service, GroupName: key.Group}
		p.received.Inc(ctx, metrics.L(metrics.LabelTrigger, p.Name()), metrics.L(metrics.LabelOutcome, metrics.OutcomeSuccess))
		if err := p.publisher.Publish(ctx, ev); err != nil {
			p.logger.WarnContext(ctx, "failed to dispatch event", clog.String("service", key.String()), clog.Error(err))
			continue
		}
		published++
	}

	// 已取消订阅的服务不再保留基线
	p.mu.Lock()
	for key := range p.sums {
		if _, ok := live[key]; !ok {
			delete(p.sums, key)
		}
	}
	p.mu.Unlock()

	return published
}

// Checksum 实例集合的校验和，与实例顺序无关
func Checksum(instances []routing.ServiceInstance) uint64 {
	lines := make([]string, 0, len(instances))
	for _, inst := range instances {
		lines = append(lines, instanceLine(inst))
	}
	slices.Sort(lines)

	d := xxhash.New()
	for _, line := range lines {
		_, _ = d.WriteString(line)
		_, _ = d.WriteString("\n")
	}
	return d.Sum64()
}

func instanceLine(inst routing.ServiceInstance) string {
	b := make([]byte, 0, 128)
	b = append(b, inst.IP...)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(inst.Port), 10)
	b = append(b, '|')
	b = append(b, inst.ClusterName...)
	b = append(b, '|')
	b = strconv.AppendBool(b, inst.Healthy)
	b = append(b, '|')
	b = strconv.AppendBool(b, inst.Enabled)
	b = append(b, '|')
	b = strconv.AppendFloat(b, inst.Weight, 'g', -1, 64)

	keys := make([]string, 0, len(inst.Metadata))
	for k := range inst.Metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b = append(b, '|')
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, inst.Metadata[k]...)
	}
	return string(b)
}
