package connector

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"github.com/ceyewan/routesync/clog"
)

type redisConnector struct {
	*link[*redis.Client]
}

// NewRedis 创建 Redis 连接器，Connect 时创建客户端并 PING
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	l := newLink[*redis.Client]("redis", cfg.Name, clog.String("addr", cfg.Addr), applyOptions(opts))
	l.drv = driver[*redis.Client]{
		dial: func(context.Context) (*redis.Client, error) {
			return redis.NewClient(&redis.Options{
				Addr:         cfg.Addr,
				Password:     cfg.Password,
				DB:           cfg.DB,
				PoolSize:     cfg.PoolSize,
				MinIdleConns: cfg.MinIdleConns,
				DialTimeout:  cfg.DialTimeout,
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
				// 单机部署不需要维护通知
				MaintNotificationsConfig: &maintnotifications.Config{Mode: maintnotifications.ModeDisabled},
			}), nil
		},
		probe: func(ctx context.Context, client *redis.Client) error {
			return client.Ping(ctx).Err()
		},
		release: (*redis.Client).Close,
	}
	return redisConnector{l}, nil
}
