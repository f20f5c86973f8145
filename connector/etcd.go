package connector

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/routesync/clog"
)

type etcdConnector struct {
	*link[*clientv3.Client]
}

// NewEtcd 创建 etcd 连接器。clientv3.New 不阻塞，探活对第一个端点调用 Status
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	l := newLink[*clientv3.Client]("etcd", cfg.Name, clog.Strings("endpoints", cfg.Endpoints), applyOptions(opts))
	l.drv = driver[*clientv3.Client]{
		dial: func(ctx context.Context) (*clientv3.Client, error) {
			return clientv3.New(clientv3.Config{
				Endpoints:            cfg.Endpoints,
				Username:             cfg.Username,
				Password:             cfg.Password,
				DialTimeout:          cfg.DialTimeout,
				DialKeepAliveTime:    cfg.KeepAliveTime,
				DialKeepAliveTimeout: cfg.KeepAliveTimeout,
				Context:              context.WithoutCancel(ctx),
			})
		},
		probe: func(ctx context.Context, client *clientv3.Client) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
			_, err := client.Status(ctx, cfg.Endpoints[0])
			return err
		},
		release: (*clientv3.Client).Close,
	}
	return etcdConnector{l}, nil
}
