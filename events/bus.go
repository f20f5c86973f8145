package events

import (
	"context"
	"sync"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/routing"
)

// Bus 进程内的订阅表，实现 Subscriber。
// 各事件源把收到的事件交给 Publish，由 Bus 异步分发给该服务的监听者
type Bus struct {
	logger clog.Logger

	mu        sync.RWMutex
	listeners map[routing.ServiceKey][]Listener
	closed    bool
	wg        sync.WaitGroup
}

// NewBus 创建空的订阅表
func NewBus(opts ...Option) *Bus {
	o := applyOptions(opts)
	return &Bus{
		logger:    o.logger.WithNamespace("bus"),
		listeners: make(map[routing.ServiceKey][]Listener),
	}
}

// Subscribe 同一个 listener 重复订阅同一服务只记录一次
func (b *Bus) Subscribe(_ context.Context, service, group string, listener Listener) error {
	if listener == nil {
		return ErrNilListener
	}
	key := routing.NewServiceKey(service, group)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, l := range b.listeners[key] {
		if l == listener {
			return nil
		}
	}
	b.listeners[key] = append(b.listeners[key], listener)
	b.logger.Debug("listener subscribed", clog.String("service", key.String()))
	return nil
}

// Unsubscribe 未订阅时不报错
func (b *Bus) Unsubscribe(_ context.Context, service, group string, listener Listener) error {
	if listener == nil {
		return ErrNilListener
	}
	key := routing.NewServiceKey(service, group)

	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[key]
	for i, l := range ls {
		if l != listener {
			continue
		}
		ls = append(ls[:i:i], ls[i+1:]...)
		if len(ls) == 0 {
			delete(b.listeners, key)
		} else {
			b.listeners[key] = ls
		}
		b.logger.Debug("listener unsubscribed", clog.String("service", key.String()))
		break
	}
	return nil
}

// Publish 异步分发事件，没有监听者时直接丢弃。
// 监听者在独立的 goroutine 中执行，不受调用方 ctx 取消的影响
func (b *Bus) Publish(ctx context.Context, ev InstanceChangeEvent) error {
	key := ev.Key()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	ls := append([]Listener(nil), b.listeners[key]...)
	// 在读锁内 Add，保证 Close 的 Wait 能看到
	b.wg.Add(len(ls))
	b.mu.RUnlock()

	if len(ls) == 0 {
		b.logger.Debug("no listener for event", clog.String("service", key.String()))
		return nil
	}

	detached := context.WithoutCancel(ctx)
	for _, l := range ls {
		go func(l Listener) {
			defer b.wg.Done()
			l.OnEvent(detached, ev)
		}(l)
	}
	return nil
}

// Keys 当前有监听者的服务
func (b *Bus) Keys() []routing.ServiceKey {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]routing.ServiceKey, 0, len(b.listeners))
	for k := range b.listeners {
		keys = append(keys, k)
	}
	return keys
}

// Subscribed 服务是否有监听者
func (b *Bus) Subscribed(key routing.ServiceKey) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[key]) > 0
}

// Close 拒绝新事件并等待正在执行的监听者返回
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
