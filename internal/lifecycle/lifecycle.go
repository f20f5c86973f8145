// Package lifecycle 管理进程内组件的启动与关闭顺序。
//
// 组件按 Phase 升序启动，关闭时严格按启动成功的逆序执行；
// 某个组件启动失败时，已启动的组件会被逆序关闭。
package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/xerrors"
)

// 启动阶段
const (
	PhaseTelemetry = 0  // 日志、指标、链路
	PhaseConnector = 10 // 外部连接
	PhaseComponent = 20 // 地址解析、客户端、快照提供者
	PhaseService   = 30 // 事件源、管理端
)

// Hook 一个受管组件，Start 与 Stop 均可为空
type Hook struct {
	Name  string
	Phase int
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// Manager 生命周期管理器，非并发安全，只在 main 中使用
type Manager struct {
	hooks   []Hook
	started []Hook
	logger  clog.Logger
}

// New 创建管理器
func New(logger clog.Logger) *Manager {
	if logger == nil {
		logger = clog.Discard()
	}
	return &Manager{logger: logger.WithNamespace("lifecycle")}
}

// Register 注册组件，同一 Phase 内按注册顺序启动
func (m *Manager) Register(h Hook) {
	m.hooks = append(m.hooks, h)
}

// OnStop 注册只需要关闭的组件，Phase 决定它在关闭序列中的位置
func (m *Manager) OnStop(name string, phase int, stop func(ctx context.Context) error) {
	m.Register(Hook{Name: name, Phase: phase, Stop: stop})
}

// StartAll 按阶段启动全部组件。失败时逆序关闭已启动的组件并返回 *Error
func (m *Manager) StartAll(ctx context.Context) error {
	sort.SliceStable(m.hooks, func(i, j int) bool {
		return m.hooks[i].Phase < m.hooks[j].Phase
	})

	for _, h := range m.hooks {
		if h.Start != nil {
			if err := h.Start(ctx); err != nil {
				m.StopAll(context.WithoutCancel(ctx))
				return &Error{Phase: h.Phase, Name: h.Name, Cause: err}
			}
		}
		m.started = append(m.started, h)
		m.logger.Debug("component started", clog.String("name", h.Name), clog.Int("phase", h.Phase))
	}
	return nil
}

// StopAll 逆序关闭已启动的组件，返回合并后的错误。可重复调用
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		h := m.started[i]
		if h.Stop == nil {
			continue
		}
		if err := h.Stop(ctx); err != nil {
			m.logger.Error("component stop failed", clog.String("name", h.Name), clog.Error(err))
			errs = append(errs, &Error{Phase: h.Phase, Name: h.Name, Cause: err})
			continue
		}
		m.logger.Debug("component stopped", clog.String("name", h.Name))
	}
	m.started = nil
	return xerrors.Combine(errs...)
}

// Error 生命周期错误
type Error struct {
	Phase int
	Name  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("lifecycle phase %d [%s]: %v", e.Phase, e.Name, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
