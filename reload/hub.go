package reload

import (
	"sync"
	"sync/atomic"
)

// Hub 持有当前活跃的 Signal，Fire 时原子地换上新 Signal 并触发旧的
type Hub struct {
	current atomic.Pointer[Signal]
}

// NewHub 创建 Hub
func NewHub() *Hub {
	h := &Hub{}
	h.current.Store(NewSignal())
	return h
}

// Signal 当前活跃的信号
func (h *Hub) Signal() *Signal {
	return h.current.Load()
}

// Subscribe 订阅当前代际，只会被通知一次
func (h *Hub) Subscribe(cb func()) *Subscription {
	return h.Signal().Subscribe(cb)
}

// HasFired 当前代际是否已触发，刚 Fire 过的 Hub 上总是 false
func (h *Hub) HasFired() bool {
	return h.Signal().HasFired()
}

// Fire 换上新信号并触发旧信号的回调
func (h *Hub) Fire() {
	old := h.current.Swap(NewSignal())
	old.Fire()
}

// Watcher OnChange 返回的持续订阅句柄
type Watcher struct {
	source   func() *Signal
	consumer func()

	mu      sync.Mutex
	sub     *Subscription
	stopped bool
}

// OnChange 持续监听 source 返回的信号。
// 每次触发后先取得下一代信号再执行 consumer，consumer 执行期间发生的触发会在其返回后立刻再次通知
func OnChange(source func() *Signal, consumer func()) *Watcher {
	w := &Watcher{source: source, consumer: consumer}
	w.arm(source())
	return w
}

func (w *Watcher) onFire() {
	if w.isStopped() {
		return
	}
	next := w.source()
	w.consumer()
	w.arm(next)
}

func (w *Watcher) arm(signal *Signal) {
	for !w.isStopped() {
		if signal.HasFired() {
			next := w.source()
			w.consumer()
			signal = next
			continue
		}

		sub := signal.Subscribe(w.onFire)
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			sub.Dispose()
			return
		}
		w.sub = sub
		w.mu.Unlock()
		return
	}
}

func (w *Watcher) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Stop 停止监听，正在执行的 consumer 不受影响
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()
	sub.Dispose()
}
