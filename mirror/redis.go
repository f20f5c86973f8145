package mirror

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/connector"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/xerrors"
)

// RedisSink 在一个事务里 SET 快照并 PUBLISH 修订号
type RedisSink struct {
	conn    connector.RedisConnector
	key     string
	channel string
	codec   Codec
	logger  clog.Logger
}

// NewRedisSink key 和 channel 为空时使用默认值
func NewRedisSink(conn connector.RedisConnector, key, channel string, opts ...Option) (*RedisSink, error) {
	if conn == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "redis connector is nil")
	}
	if key == "" {
		key = DefaultKey
	}
	if channel == "" {
		channel = DefaultChannel
	}
	o := applyOptions(opts)
	return &RedisSink{
		conn:    conn,
		key:     key,
		channel: channel,
		codec:   o.codec,
		logger:  o.logger.With(clog.String("backend", "redis")),
	}, nil
}

func (s *RedisSink) Publish(ctx context.Context, snapshot *routing.ConfigSnapshot) error {
	data, err := s.codec.Marshal(snapshot)
	if err != nil {
		return xerrors.Wrap(err, "encode snapshot")
	}

	client := s.conn.GetClient()
	if client == nil {
		return connector.ErrNotConnected
	}
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, data, 0)
		pipe.Publish(ctx, s.channel, strconv.FormatUint(snapshot.Revision, 10))
		return nil
	})
	if err != nil {
		return xerrors.Wrapf(err, "mirror snapshot to redis key %s", s.key)
	}

	s.logger.DebugContext(ctx, "snapshot mirrored", clog.Uint64("revision", snapshot.Revision), clog.Int("bytes", len(data)))
	return nil
}

// Fetch 读取最近一次写入的快照
func (s *RedisSink) Fetch(ctx context.Context) (*routing.ConfigSnapshot, error) {
	client := s.conn.GetClient()
	if client == nil {
		return nil, connector.ErrNotConnected
	}
	data, err := client.Get(ctx, s.key).Bytes()
	if xerrors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "get redis key %s", s.key)
	}
	return decode(s.codec, data)
}
