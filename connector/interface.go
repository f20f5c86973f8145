// Package connector 管理 routesync 依赖的外部连接：NATS 与 Kafka 用于接收实例变更事件，
// Redis 与 etcd 用于镜像已发布的路由快照。
//
// 约定：
//   - NewXXX 只校验配置，Connect 时才创建客户端并探活
//   - Connect 幂等，可重复调用
//   - 谁创建谁负责 Close，使用连接的组件只借用 GetClient 的结果
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"}, connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	client := conn.GetClient()
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Connector 所有连接器的通用行为，方法均并发安全
type Connector interface {
	// Connect 建立连接，已连接时直接返回 nil
	Connect(ctx context.Context) error

	// Close 关闭连接，可重复调用
	Close() error

	// HealthCheck 主动探测连接，并刷新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error

	// IsHealthy 最近一次探测的结果
	IsHealthy() bool

	// Name 连接器名称，用于日志和指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector

	// GetClient Connect 成功之前或 Close 之后返回 nil
	GetClient() T
}

// RedisConnector Redis 连接器
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// EtcdConnector etcd 连接器
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}

// NATSConnector NATS 连接器，内置自动重连
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}

// KafkaConnector Kafka 连接器，基于 franz-go
type KafkaConnector interface {
	TypedConnector[*kgo.Client]
}
