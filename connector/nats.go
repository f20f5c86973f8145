package connector

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/ceyewan/routesync/clog"
)

type natsConnector struct {
	*link[*nats.Conn]
}

// NewNATS 创建 NATS 连接器。断线期间 IsHealthy 为 false，客户端自行重连
func NewNATS(cfg *NATSConfig, opts ...Option) (NATSConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	l := newLink[*nats.Conn]("nats", cfg.Name, clog.String("url", cfg.URL), applyOptions(opts))
	l.drv = driver[*nats.Conn]{
		dial: func(context.Context) (*nats.Conn, error) {
			natsOpts := []nats.Option{
				nats.Name(cfg.Name),
				nats.Timeout(cfg.Timeout),
				nats.MaxReconnects(cfg.MaxReconnects),
				nats.ReconnectWait(cfg.ReconnectWait),
				nats.PingInterval(cfg.PingInterval),
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					l.healthy.Store(false)
					l.logger.Warn("nats disconnected", clog.Error(err))
				}),
				nats.ReconnectHandler(func(conn *nats.Conn) {
					l.healthy.Store(true)
					l.logger.Info("nats reconnected", clog.String("url", conn.ConnectedUrl()))
				}),
			}
			if cfg.Username != "" && cfg.Password != "" {
				natsOpts = append(natsOpts, nats.UserInfo(cfg.Username, cfg.Password))
			}
			if cfg.Token != "" {
				natsOpts = append(natsOpts, nats.Token(cfg.Token))
			}
			return nats.Connect(cfg.URL, natsOpts...)
		},
		probe: func(_ context.Context, conn *nats.Conn) error {
			if status := conn.Status(); status != nats.CONNECTED {
				return fmt.Errorf("status %s", status)
			}
			return nil
		},
		release: func(conn *nats.Conn) error {
			// Drain 先处理完已投递的消息
			if err := conn.Drain(); err != nil {
				conn.Close()
			}
			return nil
		},
		stale: (*nats.Conn).IsClosed,
	}
	return natsConnector{l}, nil
}
