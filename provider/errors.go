package provider

import (
	"github.com/ceyewan/routesync/xerrors"
)

// ErrClosed Provider 已关闭
var ErrClosed = xerrors.New("provider: closed")

// ConfigLoadError 构建快照失败。首次构建失败时 Initial 为 true，调用方应终止启动；
// 之后的失败只会让 Provider 进入 degraded 状态，旧快照继续提供服务
type ConfigLoadError struct {
	Initial bool
	Err     error
}

func (e *ConfigLoadError) Error() string {
	if e.Initial {
		return "initial config load failed: " + e.Err.Error()
	}
	return "config reload failed: " + e.Err.Error()
}

func (e *ConfigLoadError) Unwrap() error {
	return e.Err
}

func loadError(initial bool, err error) error {
	return xerrors.WithCode(&ConfigLoadError{Initial: initial, Err: err}, xerrors.CodeConfigLoad)
}
