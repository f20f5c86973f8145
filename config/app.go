package config

import (
	"context"
	"time"

	"github.com/ceyewan/routesync/admin"
	"github.com/ceyewan/routesync/breaker"
	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/connector"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/trace"
	"github.com/ceyewan/routesync/xerrors"
)

// AppConfig routesync 进程的完整配置
//
//	app:       {name: routesync, env: dev}
//	naming:    注册中心地址、命名空间与凭据
//	discovery: 扫描的分组、分页大小、兜底刷新间隔
//	gateway:   路由前缀与每个服务的负载均衡和健康检查选项
type AppConfig struct {
	App       AppInfo                 `mapstructure:"app"`
	Log       clog.Config             `mapstructure:"log"`
	Metrics   metrics.Config          `mapstructure:"metrics"`
	Trace     trace.Config            `mapstructure:"trace"`
	Naming    NamingConfig            `mapstructure:"naming"`
	Discovery DiscoveryConfig         `mapstructure:"discovery"`
	Gateway   *routing.GatewayOptions `mapstructure:"gateway"`
	Events    EventsConfig            `mapstructure:"events"`
	Mirror    MirrorConfig            `mapstructure:"mirror"`
	Admin     admin.Config            `mapstructure:"admin"`
}

// AppInfo 应用标识
type AppInfo struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// NamingConfig 注册中心连接配置
type NamingConfig struct {
	ServerAddresses []string       `mapstructure:"server_addresses"`
	Endpoint        string         `mapstructure:"endpoint"` // 地址服务器，设置后进入发现模式
	ContextPath     string         `mapstructure:"context_path"`
	Namespace       string         `mapstructure:"namespace"`
	ClusterName     string         `mapstructure:"cluster_name"`
	ServerPort      int            `mapstructure:"server_port"`
	AccessKey       string         `mapstructure:"access_key"`
	SecretKey       string         `mapstructure:"secret_key"`
	UserName        string         `mapstructure:"username"`
	Password        string         `mapstructure:"password"`
	AccessToken     string         `mapstructure:"access_token"` // 固定 token，优先于用户名密码登录
	AppName         string         `mapstructure:"app_name"`
	Timeout         time.Duration  `mapstructure:"timeout"`
	RefreshInterval time.Duration  `mapstructure:"refresh_interval"`
	DomainRetry     int            `mapstructure:"domain_retry"`
	Breaker         breaker.Config `mapstructure:"breaker"`
}

// DiscoveryConfig 全量扫描配置
type DiscoveryConfig struct {
	Groups []string `mapstructure:"groups"`
	Count  int      `mapstructure:"count"` // 服务列表分页大小
	Delay  int      `mapstructure:"delay"` // 兜底刷新间隔（秒），0 表示 10 秒
}

// DelayDuration 兜底刷新间隔
func (d DiscoveryConfig) DelayDuration() time.Duration {
	if d.Delay <= 0 {
		return 10 * time.Second
	}
	return time.Duration(d.Delay) * time.Second
}

// EventsConfig 实例变更事件来源
type EventsConfig struct {
	// Sources 启用的事件源：nats、kafka、poll，可组合
	Sources       []string               `mapstructure:"sources"`
	Subject       string                 `mapstructure:"subject"` // NATS 主题前缀
	Topic         string                 `mapstructure:"topic"`   // Kafka topic
	ConsumerGroup string                 `mapstructure:"consumer_group"`
	PollInterval  time.Duration          `mapstructure:"poll_interval"`
	NATS          connector.NATSConfig   `mapstructure:"nats"`
	Kafka         connector.KafkaConfig  `mapstructure:"kafka"`
}

// MirrorConfig 快照镜像，发布成功后写入外部存储供其他网关副本读取
type MirrorConfig struct {
	Backends []string             `mapstructure:"backends"` // redis、etcd
	Key      string               `mapstructure:"key"`
	Channel  string               `mapstructure:"channel"`
	Codec    string               `mapstructure:"codec"` // json|msgpack
	Redis    connector.RedisConfig `mapstructure:"redis"`
	Etcd     connector.EtcdConfig  `mapstructure:"etcd"`
}

// Validate 校验必需配置段，缺少 gateway 时返回 MissingConfigurationError
func (c *AppConfig) Validate() error {
	if c.Gateway == nil {
		return &MissingConfigurationError{Section: "gateway", Hint: "please set your gateway options"}
	}
	if len(c.Naming.ServerAddresses) == 0 && c.Naming.Endpoint == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "naming.server_addresses or naming.endpoint is required")
	}
	return nil
}

// Load 便捷函数：创建加载器、加载并反序列化为 AppConfig
func Load(ctx context.Context, cfg *Config, opts ...Option) (Loader, *AppConfig, error) {
	loader, err := New(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, nil, err
	}

	app := &AppConfig{}
	if err := loader.Unmarshal(app); err != nil {
		return nil, nil, xerrors.Wrap(err, "failed to unmarshal app config")
	}
	return loader, app, nil
}
