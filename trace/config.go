package trace

// Config 链路追踪配置
//
//	trace:
//	  service_name: routesync
//	  endpoint: "otel-collector:4317"   # 为空时不导出，只生成 TraceID 供日志关联
//	  sampler: 0.2
//	  batcher: batch
//	  insecure: true
type Config struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampler     float64 `mapstructure:"sampler"`
	Batcher     string  `mapstructure:"batcher"` // batch|simple
	Insecure    bool    `mapstructure:"insecure"`
}

// DefaultConfig 返回默认配置，Endpoint 为空即不导出
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}
