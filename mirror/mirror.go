// Package mirror 把发布的路由快照写到外部存储，其他网关副本可以直接读取，
// 不必各自扫描注册中心。
//
//	redis: SET {key} <encoded snapshot>，随后 PUBLISH {channel} <revision>
//	etcd:  PUT {key} <encoded snapshot>，读者可以 Watch 该 key
package mirror

import (
	"context"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/xerrors"
)

const (
	// DefaultKey 快照在存储中的 key
	DefaultKey = "routesync/snapshot"
	// DefaultChannel Redis 发布新修订号的频道
	DefaultChannel = "routesync:snapshot"
)

// ErrNotFound 存储中还没有快照
var ErrNotFound = xerrors.Wrap(xerrors.ErrNotFound, "mirror: snapshot not found")

// Sink 快照下游，满足 provider.Sink
type Sink interface {
	Publish(ctx context.Context, snapshot *routing.ConfigSnapshot) error
}

// Reader 读取镜像中的快照
type Reader interface {
	Fetch(ctx context.Context) (*routing.ConfigSnapshot, error)
}

// Multi 依次写入所有 Sink，某个失败不影响其他
type Multi []Sink

func (m Multi) Publish(ctx context.Context, snapshot *routing.ConfigSnapshot) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return xerrors.Combine(errs...)
}

// Option 镜像选项
type Option func(*options)

type options struct {
	logger clog.Logger
	codec  Codec
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("mirror")
		}
	}
}

// WithCodec 设置编码，默认 JSON
func WithCodec(codec Codec) Option {
	return func(o *options) {
		if codec != nil {
			o.codec = codec
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard(), codec: jsonCodec{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func decode(codec Codec, data []byte) (*routing.ConfigSnapshot, error) {
	var snap routing.ConfigSnapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return nil, xerrors.Wrapf(err, "decode snapshot with %s", codec.Name())
	}
	return routing.NewSnapshot(snap.Routes, snap.Clusters, snap.Revision, nil), nil
}
