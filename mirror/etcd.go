package mirror

import (
	"context"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/connector"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/xerrors"
)

// EtcdSink 把快照 Put 到一个 key
type EtcdSink struct {
	conn   connector.EtcdConnector
	key    string
	codec  Codec
	logger clog.Logger
}

// NewEtcdSink key 为空时使用 DefaultKey
func NewEtcdSink(conn connector.EtcdConnector, key string, opts ...Option) (*EtcdSink, error) {
	if conn == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "etcd connector is nil")
	}
	if key == "" {
		key = DefaultKey
	}
	o := applyOptions(opts)
	return &EtcdSink{
		conn:   conn,
		key:    key,
		codec:  o.codec,
		logger: o.logger.With(clog.String("backend", "etcd")),
	}, nil
}

func (s *EtcdSink) Publish(ctx context.Context, snapshot *routing.ConfigSnapshot) error {
	data, err := s.codec.Marshal(snapshot)
	if err != nil {
		return xerrors.Wrap(err, "encode snapshot")
	}
	client := s.conn.GetClient()
	if client == nil {
		return connector.ErrNotConnected
	}
	resp, err := client.Put(ctx, s.key, string(data))
	if err != nil {
		return xerrors.Wrapf(err, "mirror snapshot to etcd key %s", s.key)
	}

	s.logger.DebugContext(ctx, "snapshot mirrored",
		clog.Uint64("revision", snapshot.Revision), clog.Int64("etcd_revision", resp.Header.Revision))
	return nil
}

// Fetch 读取最近一次写入的快照
func (s *EtcdSink) Fetch(ctx context.Context) (*routing.ConfigSnapshot, error) {
	client := s.conn.GetClient()
	if client == nil {
		return nil, connector.ErrNotConnected
	}
	resp, err := client.Get(ctx, s.key)
	if err != nil {
		return nil, xerrors.Wrapf(err, "get etcd key %s", s.key)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return decode(s.codec, resp.Kvs[0].Value)
}
