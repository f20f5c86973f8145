package naming

import (
	"fmt"

	"github.com/ceyewan/routesync/xerrors"
)

var (
	// ErrNoServer 地址列表为空且不处于域名模式
	ErrNoServer = xerrors.New("naming: no server available")
	// ErrUnexpectedStatus 服务端返回了非 2xx/304 的状态码
	ErrUnexpectedStatus = xerrors.New("naming: unexpected status")
)

// TransientNetworkError 对单个服务端的一次请求失败：超时、连接错误或非 2xx。
// 只在内部用于重试，所有尝试都失败后由 ExhaustedServersError 携带最后一次的信息
type TransientNetworkError struct {
	Server  string
	Status  int // 没有收到响应时为 0
	Message string
	Cause   error
}

func (e *TransientNetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request %s failed with status %d: %s", e.Server, e.Status, e.Message)
	}
	return fmt.Sprintf("request %s failed: %s", e.Server, e.Message)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Cause
}

// ExhaustedServersError 一次逻辑调用的所有尝试都失败了
type ExhaustedServersError struct {
	Path        string
	Attempts    int
	LastStatus  int
	LastMessage string
	Last        error
}

func (e *ExhaustedServersError) Error() string {
	return fmt.Sprintf("failed to request %s after %d attempts, last status %d: %s",
		e.Path, e.Attempts, e.LastStatus, e.LastMessage)
}

// Unwrap 同时匹配 xerrors.ErrUnavailable 和最后一次失败的原因
func (e *ExhaustedServersError) Unwrap() []error {
	if e.Last == nil {
		return []error{xerrors.ErrUnavailable}
	}
	return []error{xerrors.ErrUnavailable, e.Last}
}

func exhausted(path string, attempts int, last *TransientNetworkError) error {
	err := &ExhaustedServersError{Path: path, Attempts: attempts}
	if last != nil {
		err.LastStatus = last.Status
		err.LastMessage = last.Message
		err.Last = last
	} else {
		err.LastMessage = ErrNoServer.Error()
		err.Last = ErrNoServer
	}
	return xerrors.WithCode(err, xerrors.CodeNamingExhausted)
}
