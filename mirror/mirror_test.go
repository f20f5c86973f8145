package mirror

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/routesync/connector"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/xerrors"
)

func sampleSnapshot(revision uint64) *routing.ConfigSnapshot {
	key := routing.NewServiceKey("svc_orders", "")
	builder := routing.NewBuilder(&routing.GatewayOptions{}, nil)
	route, cluster := builder.Build(key, []routing.ServiceInstance{
		{IP: "10.0.0.1", Port: 80, Healthy: true, Enabled: true, ServiceName: key.GroupedName(),
			Metadata: map[string]string{"yarp.weight": "3"}},
	})
	return routing.NewSnapshot([]routing.RouteDefinition{route}, []routing.ClusterDefinition{cluster}, revision, nil)
}

func TestCodec(t *testing.T) {
	for _, name := range []string{"json", "msgpack"} {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())

			want := sampleSnapshot(7)
			data, err := codec.Marshal(want)
			require.NoError(t, err)

			got, err := decode(codec, data)
			require.NoError(t, err)
			assert.Equal(t, want.Routes, got.Routes)
			assert.Equal(t, want.Clusters, got.Clusters)
			assert.Equal(t, uint64(7), got.Revision)
			assert.Nil(t, got.ChangeSignal(), "镜像中读出的快照没有变更信号")
		})
	}

	t.Run("默认 JSON", func(t *testing.T) {
		codec, err := NewCodec("")
		require.NoError(t, err)
		assert.Equal(t, "json", codec.Name())
	})

	t.Run("不支持的编码", func(t *testing.T) {
		_, err := NewCodec("gob")
		assert.ErrorIs(t, err, ErrUnsupportedCodec)
	})

	t.Run("损坏的数据", func(t *testing.T) {
		_, err := decode(jsonCodec{}, []byte("{"))
		assert.Error(t, err)
	})
}

type fakeSink struct {
	calls int
	err   error
}

func (f *fakeSink) Publish(context.Context, *routing.ConfigSnapshot) error {
	f.calls++
	return f.err
}

func TestMulti(t *testing.T) {
	failing := &fakeSink{err: errors.New("down")}
	ok := &fakeSink{}

	err := Multi{failing, ok}.Publish(context.Background(), sampleSnapshot(1))
	assert.Error(t, err)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls, "前一个失败不影响后续")

	assert.NoError(t, Multi{ok}.Publish(context.Background(), sampleSnapshot(2)))
	assert.NoError(t, Multi(nil).Publish(context.Background(), sampleSnapshot(3)))
}

func TestNilConnector(t *testing.T) {
	_, err := NewRedisSink(nil, "", "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	_, err = NewEtcdSink(nil, "")
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestSinkBeforeConnect(t *testing.T) {
	redisConn, err := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"})
	require.NoError(t, err)
	redisSink, err := NewRedisSink(redisConn, "", "")
	require.NoError(t, err)
	assert.ErrorIs(t, redisSink.Publish(context.Background(), sampleSnapshot(1)), connector.ErrNotConnected)

	etcdConn, err := connector.NewEtcd(&connector.EtcdConfig{Endpoints: []string{"127.0.0.1:2379"}})
	require.NoError(t, err)
	etcdSink, err := NewEtcdSink(etcdConn, "")
	require.NoError(t, err)
	_, err = etcdSink.Fetch(context.Background())
	assert.ErrorIs(t, err, connector.ErrNotConnected)
}

func TestRedisSink(t *testing.T) {
	addr := os.Getenv("ROUTESYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROUTESYNC_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: addr})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	key := "routesync-test/" + time.Now().Format("150405.000000")
	sink, err := NewRedisSink(conn, key, "routesync-test", WithCodec(msgpackCodec{}))
	require.NoError(t, err)
	defer conn.GetClient().Del(ctx, key)

	_, err = sink.Fetch(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	sub := conn.GetClient().Subscribe(ctx, "routesync-test")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(ctx, sampleSnapshot(42)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", msg.Payload)

	got, err := sink.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.Revision)
	assert.Len(t, got.Clusters, 1)
}

func TestEtcdSink(t *testing.T) {
	endpoints := os.Getenv("ROUTESYNC_TEST_ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ROUTESYNC_TEST_ETCD_ENDPOINTS not set")
	}
	ctx := context.Background()

	conn, err := connector.NewEtcd(&connector.EtcdConfig{Endpoints: strings.Split(endpoints, ",")})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	key := "/routesync-test/" + time.Now().Format("150405.000000")
	sink, err := NewEtcdSink(conn, key)
	require.NoError(t, err)
	defer conn.GetClient().Delete(ctx, key)

	_, err = sink.Fetch(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, sink.Publish(ctx, sampleSnapshot(5)))
	got, err := sink.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.Revision)
	assert.Equal(t, "/api/orders/{**catch-all}", got.Routes[0].MatchPath)
}
