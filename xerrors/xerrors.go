// Package xerrors 是 routesync 各组件共用的错误工具。
//
// 组件在自己的 errors.go 里声明哨兵错误，需要携带字段时定义带 Unwrap 的结构体。
// 需要机器可读分类的错误附带错误码，日志层通过 GetCode 取出并输出为 err_code。
package xerrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable 远端服务不可用，重试或故障转移后仍失败
	ErrUnavailable          = errors.New("unavailable")
	ErrMissingConfiguration = errors.New("missing configuration")
)

const (
	CodeNamingExhausted  = "NAMING_EXHAUSTED"
	CodeConfigLoad       = "CONFIG_LOAD"
	CodeConfigMissing    = "CONFIG_MISSING"
	CodeDiscoveryPartial = "DISCOVERY_PARTIAL"
)

// Wrap 在错误前加上下文，err 为 nil 时返回 nil
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Coder 由携带错误码的错误实现
type Coder interface {
	Code() string
}

type coded struct {
	code  string
	cause error
}

func (e *coded) Error() string { return "[" + e.code + "] " + e.cause.Error() }
func (e *coded) Unwrap() error { return e.cause }
func (e *coded) Code() string  { return e.code }

// WithCode 给错误附加错误码
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &coded{code: code, cause: err}
}

// GetCode 返回错误链上最外层的错误码，没有时返回空串
func GetCode(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// MultiError 多个相互独立的失败，例如逐个关闭组件时的错误
type MultiError []error

func (m MultiError) Error() string {
	msgs := make([]string, len(m))
	for i, err := range m {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (m MultiError) Unwrap() []error { return m }

// Combine 丢弃 nil，只剩一个时原样返回
func Combine(errs ...error) error {
	var m MultiError
	for _, err := range errs {
		if err != nil {
			m = append(m, err)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
)
