package events

import "github.com/ceyewan/routesync/xerrors"

var (
	// ErrNilListener 订阅时传入了 nil
	ErrNilListener = xerrors.New("events: listener is nil")
	// ErrBusClosed 总线已关闭
	ErrBusClosed = xerrors.New("events: bus is closed")
	// ErrInvalidPayload 消息体无法解析为实例变更事件
	ErrInvalidPayload = xerrors.New("events: invalid payload")
)
