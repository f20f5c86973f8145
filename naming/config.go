package naming

import "time"

const (
	// DefaultTimeout 单次尝试的超时
	DefaultTimeout = 8 * time.Second
	// DefaultDomainRetry 域名模式下额外的重试次数
	DefaultDomainRetry = 3
	// DefaultAppName 请求参数 app 的默认值
	DefaultAppName = "routesync"

	// APIBase 命名服务接口的路径前缀，完整路径为 {server}{contextPath}/v1/ns{path}
	APIBase = "/v1/ns"
)

// Config 命名服务客户端配置
type Config struct {
	Namespace   string
	AccessKey   string
	SecretKey   string
	AppName     string
	Timeout     time.Duration
	DomainRetry int
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.DomainRetry <= 0 {
		c.DomainRetry = DefaultDomainRetry
	}
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
}
