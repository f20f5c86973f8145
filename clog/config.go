package clog

import (
	"fmt"
	"strings"
)

// TimeFormat 日志时间格式
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config 日志配置
//
//	Level:       debug|info|warn|error|fatal
//	Format:      json|console
//	Output:      stdout|stderr|文件路径
//	EnableColor: console 格式下为级别着色
//	AddSource:   输出调用位置 caller
//	SourceRoot:  caller 路径裁剪前缀
type Config struct {
	Level       string `mapstructure:"level" json:"level" yaml:"level"`
	Format      string `mapstructure:"format" json:"format" yaml:"format"`
	Output      string `mapstructure:"output" json:"output" yaml:"output"`
	EnableColor bool   `mapstructure:"enable_color" json:"enableColor" yaml:"enableColor"`
	AddSource   bool   `mapstructure:"add_source" json:"addSource" yaml:"addSource"`
	SourceRoot  string `mapstructure:"source_root" json:"sourceRoot" yaml:"sourceRoot"`
}

// NewDevDefaultConfig 开发环境默认配置：debug 级别，彩色 console 输出
func NewDevDefaultConfig() *Config {
	return &Config{
		Level:       "debug",
		Format:      "console",
		Output:      "stdout",
		EnableColor: true,
		AddSource:   true,
	}
}

// validate 填充默认值并校验
func (c *Config) validate() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}

	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid format: %s, must be json or console", c.Format)
	}
	return nil
}
