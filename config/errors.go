package config

import (
	"fmt"

	"github.com/ceyewan/routesync/xerrors"
)

// ErrValidationFailed 配置校验失败
var ErrValidationFailed = xerrors.New("configuration validation failed")

// MissingConfigurationError 缺少必需的配置段
type MissingConfigurationError struct {
	Section string
	Hint    string
}

func (e *MissingConfigurationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("missing configuration section %q: %s", e.Section, e.Hint)
	}
	return fmt.Sprintf("missing configuration section %q", e.Section)
}

func (e *MissingConfigurationError) Code() string { return xerrors.CodeConfigMissing }

// Is 使 xerrors.Is(err, xerrors.ErrMissingConfiguration) 成立
func (e *MissingConfigurationError) Is(target error) bool {
	return target == xerrors.ErrMissingConfiguration
}

// IsMissing 判断是否缺少配置段
func IsMissing(err error) bool {
	return xerrors.Is(err, xerrors.ErrMissingConfiguration)
}
