package metrics

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: "routesync"
//	  version: "v0.3.0"
//	  port: 9090
//	  path: "/metrics"
//	  runtime: true
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 写入 Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`

	// Version 写入 Resource 的 service.version
	Version string `mapstructure:"version"`

	// Port 大于 0 且 Path 非空时，单独启动一个 HTTP 服务暴露 Prometheus 指标。
	// 管理端已挂载 /metrics 时保持为 0 即可
	Port int `mapstructure:"port"`

	// Path 指标路径，必须以 "/" 开头
	Path string `mapstructure:"path"`

	// Runtime 是否采集 Go 运行时指标（GC、goroutine、内存）
	Runtime bool `mapstructure:"runtime"`
}

// NewDefaultConfig 默认开启，指标由管理端 /metrics 暴露
func NewDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Path:        "/metrics",
		Runtime:     true,
	}
}
