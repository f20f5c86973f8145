package connector

import (
	"time"

	"github.com/ceyewan/routesync/xerrors"
)

const defaultName = "default"

// orDefault 零值字段填入默认值
func orDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Name     string `mapstructure:"name"`     // 连接器名称，默认 "default"
	Addr     string `mapstructure:"addr"`     // [必填] 如 "127.0.0.1:6379"
	Password string `mapstructure:"password"` // [可选]
	DB       int    `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`      // 默认 10
	MinIdleConns int           `mapstructure:"min_idle_conns"` // 默认 2
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`   // 默认 5s
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`   // 默认 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`  // 默认 3s
}

func (c *RedisConfig) setDefaults() {
	orDefault(&c.Name, defaultName)
	orDefault(&c.PoolSize, 10)
	orDefault(&c.MinIdleConns, 2)
	orDefault(&c.DialTimeout, 5*time.Second)
	orDefault(&c.ReadTimeout, 3*time.Second)
	orDefault(&c.WriteTimeout, 3*time.Second)
}

func (c *RedisConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "redis config is nil")
	}
	c.setDefaults()
	if c.Addr == "" {
		return xerrors.Wrap(ErrConfig, "redis addr is required")
	}
	if c.DB < 0 {
		return xerrors.Wrap(ErrConfig, "redis db must not be negative")
	}
	return nil
}

// EtcdConfig etcd 连接配置
type EtcdConfig struct {
	Name      string   `mapstructure:"name"`
	Endpoints []string `mapstructure:"endpoints"` // [必填]
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`

	DialTimeout      time.Duration `mapstructure:"dial_timeout"`       // 默认 5s
	KeepAliveTime    time.Duration `mapstructure:"keep_alive_time"`    // 默认 10s
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout"` // 默认 3s
}

func (c *EtcdConfig) setDefaults() {
	orDefault(&c.Name, defaultName)
	orDefault(&c.DialTimeout, 5*time.Second)
	orDefault(&c.KeepAliveTime, 10*time.Second)
	orDefault(&c.KeepAliveTimeout, 3*time.Second)
}

func (c *EtcdConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "etcd config is nil")
	}
	c.setDefaults()
	if len(c.Endpoints) == 0 {
		return xerrors.Wrap(ErrConfig, "etcd endpoints are required")
	}
	return nil
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"` // [必填] 如 "nats://127.0.0.1:4222"
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`

	Timeout       time.Duration `mapstructure:"timeout"`        // 默认 5s
	MaxReconnects int           `mapstructure:"max_reconnects"` // 默认 60，-1 表示无限重连
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"` // 默认 2s
	PingInterval  time.Duration `mapstructure:"ping_interval"`  // 默认 2m
}

func (c *NATSConfig) setDefaults() {
	orDefault(&c.Name, defaultName)
	orDefault(&c.Timeout, 5*time.Second)
	orDefault(&c.MaxReconnects, 60)
	orDefault(&c.ReconnectWait, 2*time.Second)
	orDefault(&c.PingInterval, 2*time.Minute)
}

func (c *NATSConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "nats config is nil")
	}
	c.setDefaults()
	if c.URL == "" {
		return xerrors.Wrap(ErrConfig, "nats url is required")
	}
	return nil
}

// KafkaConfig Kafka 连接配置
type KafkaConfig struct {
	Name     string   `mapstructure:"name"`
	Seed     []string `mapstructure:"seed"` // [必填] 初始 broker
	User     string   `mapstructure:"user"` // 设置后启用 SASL/PLAIN
	Password string   `mapstructure:"password"`
	ClientID string   `mapstructure:"client_id"` // 默认 "routesync"

	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 默认 10s
}

func (c *KafkaConfig) setDefaults() {
	orDefault(&c.Name, defaultName)
	orDefault(&c.ClientID, "routesync")
	orDefault(&c.RequestTimeout, 10*time.Second)
}

func (c *KafkaConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "kafka config is nil")
	}
	c.setDefaults()
	if len(c.Seed) == 0 {
		return xerrors.Wrap(ErrConfig, "kafka seed brokers are required")
	}
	return nil
}
