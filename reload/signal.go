// Package reload 提供单次触发的变更信号，以及在信号代际之间切换的 Hub。
//
// Signal 只能触发一次；想持续收到通知的订阅方必须在被通知后订阅新的 Signal。
// OnChange 封装了这个"通知后重新订阅"的循环。
package reload

import (
	"sync"
)

// Signal 单次触发的变更信号，零值不可用，使用 NewSignal 创建
type Signal struct {
	mu        sync.Mutex
	done      chan struct{}
	fired     bool
	nextID    uint64
	callbacks map[uint64]func()
}

// NewSignal 创建处于 pending 状态的信号
func NewSignal() *Signal {
	return &Signal{
		done:      make(chan struct{}),
		callbacks: make(map[uint64]func()),
	}
}

// HasFired 是否已触发
func (s *Signal) HasFired() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done 触发后关闭的通道，可用于 select
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Subscribe 注册回调，信号触发时调用一次。
// 信号已触发时回调立即在当前 goroutine 中执行
func (s *Signal) Subscribe(cb func()) *Subscription {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		cb()
		return &Subscription{}
	}
	id := s.nextID
	s.nextID++
	s.callbacks[id] = cb
	s.mu.Unlock()

	return &Subscription{signal: s, id: id}
}

// Fire 触发信号并按注册顺序执行回调，重复调用无效果。返回本次调用是否真正触发
func (s *Signal) Fire() bool {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return false
	}
	s.fired = true
	close(s.done)
	callbacks, n := s.callbacks, s.nextID
	s.callbacks = nil
	s.mu.Unlock()

	for id := uint64(0); id < n; id++ {
		if cb, ok := callbacks[id]; ok {
			cb()
		}
	}
	return true
}

func (s *Signal) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callbacks != nil {
		delete(s.callbacks, id)
	}
}

// Subscription 一次订阅，只绑定到一个 Signal 代际
type Subscription struct {
	signal *Signal
	id     uint64
	once   sync.Once
}

// Dispose 取消订阅，可重复调用
func (s *Subscription) Dispose() {
	if s == nil || s.signal == nil {
		return
	}
	s.once.Do(func() {
		s.signal.unsubscribe(s.id)
	})
}
