package serverlist

import (
	"os"
	"strconv"
	"time"
)

const (
	// DefaultServerPort 注册中心默认端口
	DefaultServerPort = 8848
	// ServerPortEnv 覆盖默认端口的环境变量
	ServerPortEnv = "NAMING_SERVER_PORT"
	// DefaultContextPath 注册中心的 HTTP 上下文路径
	DefaultContextPath = "/nacos"
)

// Config 服务端地址配置。设置 Endpoint 时进入发现模式，否则使用 ServerAddresses
type Config struct {
	ServerAddresses []string
	Endpoint        string
	ContextPath     string        // 默认 /nacos
	Namespace       string
	ServerPort      int           // 地址不带端口时补全，默认 8848，环境变量 NAMING_SERVER_PORT 优先
	RefreshInterval time.Duration // 发现模式的刷新间隔，默认 30s
	FetchTimeout    time.Duration // 拉取地址列表的超时，默认 5s
}

func (c *Config) setDefaults() {
	if c.ContextPath == "" {
		c.ContextPath = DefaultContextPath
	}
	if c.ServerPort <= 0 {
		c.ServerPort = DefaultServerPort
	}
	if env := os.Getenv(ServerPortEnv); env != "" {
		if port, err := strconv.Atoi(env); err == nil && port > 0 {
			c.ServerPort = port
		}
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 5 * time.Second
	}
}
