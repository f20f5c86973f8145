package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/routesync/config"
	"github.com/ceyewan/routesync/events"
	"github.com/ceyewan/routesync/reload"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/store"
)

type fakeDiscovery struct {
	mu       sync.Mutex
	all      []routing.ServiceInstance
	services map[routing.ServiceKey][]routing.ServiceInstance
	scans    atomic.Int32
	err      error
}

func (f *fakeDiscovery) FetchAllInstances(context.Context) ([]routing.ServiceInstance, error) {
	f.scans.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]routing.ServiceInstance(nil), f.all...), f.err
}

func (f *fakeDiscovery) FetchService(_ context.Context, key routing.ServiceKey) ([]routing.ServiceInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services[key], nil
}

func (f *fakeDiscovery) setService(key routing.ServiceKey, instances ...routing.ServiceInstance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.services == nil {
		f.services = map[routing.ServiceKey][]routing.ServiceInstance{}
	}
	f.services[key] = instances
}

// countingSubscriber 在 Bus 之上统计订阅次数
type countingSubscriber struct {
	*events.Bus
	subscribes   atomic.Int32
	unsubscribes atomic.Int32
}

func (c *countingSubscriber) Subscribe(ctx context.Context, service, group string, l events.Listener) error {
	c.subscribes.Add(1)
	return c.Bus.Subscribe(ctx, service, group, l)
}

func (c *countingSubscriber) Unsubscribe(ctx context.Context, service, group string, l events.Listener) error {
	c.unsubscribes.Add(1)
	return c.Bus.Unsubscribe(ctx, service, group, l)
}

func instance(grouped, ip string) routing.ServiceInstance {
	return routing.ServiceInstance{IP: ip, Port: 8080, Healthy: true, Enabled: true, Weight: 1, ServiceName: grouped}
}

var (
	ordersKey = routing.NewServiceKey("svc_orders", "")
	usersKey  = routing.NewServiceKey("svc_users", "")
)

type fixture struct {
	discovery *fakeDiscovery
	store     *store.Store
	bus       *countingSubscriber
	hub       *reload.Hub
	syncer    *Syncer
}

func newFixture(t *testing.T, gateway *routing.GatewayOptions) *fixture {
	t.Helper()
	f := &fixture{
		discovery: &fakeDiscovery{all: []routing.ServiceInstance{
			instance("DEFAULT_GROUP@@svc_orders", "10.0.0.1"),
			instance("DEFAULT_GROUP@@svc_users", "10.0.0.2"),
			instance("DEFAULT_GROUP@@svc_orders", "10.0.0.3"),
		}},
		store: store.New(),
		bus:   &countingSubscriber{Bus: events.NewBus()},
		hub:   reload.NewHub(),
	}
	f.syncer = New(f.discovery, f.store, f.bus, f.hub, func() *routing.GatewayOptions { return gateway })
	t.Cleanup(f.bus.Close)
	return f
}

func TestLoad(t *testing.T) {
	f := newFixture(t, &routing.GatewayOptions{Prefix: "api"})
	ctx := context.Background()

	snap, err := f.syncer.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Routes, 2)
	require.Len(t, snap.Clusters, 2)

	orders, ok := snap.Cluster(ordersKey.ClusterID())
	require.True(t, ok)
	assert.Len(t, orders.Destinations, 2, "同一服务的实例归入一个集群")
	assert.Equal(t, "/api/orders/{**catch-all}", snap.Routes[0].MatchPath)

	_, err = f.syncer.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.discovery.scans.Load(), "路由表非空时不再扫描")
}

func routeOf(t *testing.T, snap *routing.ConfigSnapshot, key routing.ServiceKey) routing.RouteDefinition {
	t.Helper()
	for _, r := range snap.Routes {
		if r.RouteID == key.RouteID() {
			return r
		}
	}
	t.Fatalf("route %s not found", key.RouteID())
	return routing.RouteDefinition{}
}

func TestLoadAfterGatewayChange(t *testing.T) {
	ctx := context.Background()
	var current atomic.Pointer[routing.GatewayOptions]
	current.Store(&routing.GatewayOptions{Prefix: "api"})

	f := newFixture(t, nil)
	f.syncer = New(f.discovery, f.store, f.bus, f.hub, current.Load)

	snap, err := f.syncer.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/api/orders/{**catch-all}", routeOf(t, snap, ordersKey).MatchPath)

	current.Store(&routing.GatewayOptions{
		Prefix:   "/v2",
		Services: []routing.ServiceOptions{{ServiceName: "svc_orders", LoadBalancingPolicy: "RoundRobin"}},
	})

	t.Run("选项替换后按新选项重建", func(t *testing.T) {
		snap, err := f.syncer.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), f.discovery.scans.Load())
		assert.Equal(t, "/v2/orders/{**catch-all}", routeOf(t, snap, ordersKey).MatchPath)
		assert.Equal(t, "/v2/users/{**catch-all}", routeOf(t, snap, usersKey).MatchPath)

		orders, ok := snap.Cluster(ordersKey.ClusterID())
		require.True(t, ok)
		assert.Equal(t, "RoundRobin", orders.LoadBalancingPolicy)
	})

	t.Run("选项未变不再扫描", func(t *testing.T) {
		_, err := f.syncer.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), f.discovery.scans.Load())
		assert.Equal(t, int32(2), f.bus.subscribes.Load(), "重建不重复订阅")
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("每个服务只订阅一次", func(t *testing.T) {
		f := newFixture(t, &routing.GatewayOptions{})
		require.NoError(t, f.syncer.Refresh(ctx))
		require.NoError(t, f.syncer.Refresh(ctx))

		assert.Equal(t, int32(2), f.bus.subscribes.Load())
		assert.True(t, f.bus.Subscribed(ordersKey))
		assert.True(t, f.bus.Subscribed(usersKey))

		first, _ := f.store.Get(ordersKey)
		require.NoError(t, f.syncer.Refresh(ctx))
		second, _ := f.store.Get(ordersKey)
		assert.Same(t, first.Listener, second.Listener, "首个监听者保持不变")
	})

	t.Run("缺少 gateway 配置", func(t *testing.T) {
		f := newFixture(t, nil)
		err := f.syncer.Refresh(ctx)
		require.Error(t, err)
		assert.True(t, config.IsMissing(err))

		_, err = f.syncer.Load(ctx)
		assert.True(t, config.IsMissing(err))
	})

	t.Run("扫描失败", func(t *testing.T) {
		f := newFixture(t, &routing.GatewayOptions{})
		f.discovery.err = errors.New("registry down")
		assert.Error(t, f.syncer.Refresh(ctx))
		assert.Zero(t, f.store.Len())
	})

	t.Run("扫描为空时路由表不变", func(t *testing.T) {
		f := newFixture(t, &routing.GatewayOptions{})
		require.NoError(t, f.syncer.Refresh(ctx))

		f.discovery.mu.Lock()
		f.discovery.all = nil
		f.discovery.mu.Unlock()

		require.NoError(t, f.syncer.Refresh(ctx))
		assert.Equal(t, 2, f.store.Len())
	})
}

func waitFired(t *testing.T, signal *reload.Signal) {
	t.Helper()
	select {
	case <-signal.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("超时未收到重建通知")
	}
}

func TestInstanceChange(t *testing.T) {
	ctx := context.Background()

	t.Run("实例变化后更新集群并通知", func(t *testing.T) {
		f := newFixture(t, &routing.GatewayOptions{})
		require.NoError(t, f.syncer.Refresh(ctx))

		f.discovery.setService(ordersKey,
			instance("DEFAULT_GROUP@@svc_orders", "10.0.0.1"),
			instance("DEFAULT_GROUP@@svc_orders", "10.0.0.3"),
			instance("DEFAULT_GROUP@@svc_orders", "10.0.0.5"))

		signal := f.hub.Signal()
		require.NoError(t, f.bus.Publish(ctx, events.InstanceChangeEvent{ServiceName: "svc_orders", GroupName: "DEFAULT_GROUP"}))
		waitFired(t, signal)

		entry, ok := f.store.Get(ordersKey)
		require.True(t, ok)
		assert.Len(t, entry.Cluster.Destinations, 3)
	})

	t.Run("实例为空时移除条目并取消订阅", func(t *testing.T) {
		f := newFixture(t, &routing.GatewayOptions{})
		require.NoError(t, f.syncer.Refresh(ctx))
		f.discovery.setService(usersKey)

		signal := f.hub.Signal()
		require.NoError(t, f.bus.Publish(ctx, events.InstanceChangeEvent{ServiceName: "svc_users"}))
		waitFired(t, signal)

		_, ok := f.store.Get(usersKey)
		assert.False(t, ok)
		assert.False(t, f.bus.Subscribed(usersKey))
		assert.True(t, f.bus.Subscribed(ordersKey))
	})
}

func TestApplyAfterRemove(t *testing.T) {
	f := newFixture(t, &routing.GatewayOptions{})
	ctx := context.Background()
	require.NoError(t, f.syncer.Refresh(ctx))

	require.NoError(t, f.syncer.Remove(ctx, ordersKey))
	require.NoError(t, f.syncer.Remove(ctx, ordersKey), "重复移除不报错")

	require.NoError(t, f.syncer.Apply(ctx, ordersKey, []routing.ServiceInstance{instance("DEFAULT_GROUP@@svc_orders", "10.0.0.9")}))
	entry, ok := f.store.Get(ordersKey)
	require.True(t, ok)
	assert.Nil(t, entry.Listener)

	require.NoError(t, f.syncer.Refresh(ctx))
	entry, _ = f.store.Get(ordersKey)
	assert.NotNil(t, entry.Listener, "下一次全量扫描安装监听者")
	assert.True(t, f.bus.Subscribed(ordersKey))
}

func TestClear(t *testing.T) {
	f := newFixture(t, &routing.GatewayOptions{})
	ctx := context.Background()
	require.NoError(t, f.syncer.Refresh(ctx))

	require.NoError(t, f.syncer.Clear(ctx))
	assert.Zero(t, f.store.Len())
	assert.Equal(t, int32(2), f.bus.unsubscribes.Load())
	assert.Empty(t, f.bus.Keys())
}
