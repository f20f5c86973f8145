package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/routesync/admin"
	"github.com/ceyewan/routesync/config"
	"github.com/ceyewan/routesync/provider"
	"github.com/ceyewan/routesync/routing"
)

// fakeRegistry 只实现服务列表与实例查询两个接口
type fakeRegistry struct {
	mu    sync.Mutex
	hosts []routing.ServiceInstance
}

func (f *fakeRegistry) setHosts(hosts ...routing.ServiceInstance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = hosts
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/nacos/v1/ns/service/list":
		_ = json.NewEncoder(w).Encode(map[string]any{"count": 1, "doms": []string{"svc_orders"}})
	case "/nacos/v1/ns/instance/list":
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "DEFAULT_GROUP@@svc_orders", "hosts": f.hosts})
	default:
		http.NotFound(w, r)
	}
}

func host(ip string) routing.ServiceInstance {
	return routing.ServiceInstance{
		InstanceID:  ip + "#8080",
		IP:          ip,
		Port:        8080,
		Weight:      1,
		Healthy:     true,
		Enabled:     true,
		ServiceName: "DEFAULT_GROUP@@svc_orders",
	}
}

func testConfig(registryURL string) *config.AppConfig {
	return &config.AppConfig{
		App: config.AppInfo{Name: "routesync-test"},
		Naming: config.NamingConfig{
			ServerAddresses: []string{registryURL},
			Timeout:         time.Second,
		},
		Discovery: config.DiscoveryConfig{Groups: []string{"DEFAULT_GROUP"}, Count: 10, Delay: 60},
		Gateway: &routing.GatewayOptions{
			Prefix: "/api",
			Services: []routing.ServiceOptions{
				{ServiceName: "svc_orders", LoadBalancingPolicy: "RoundRobin"},
			},
		},
		Events: config.EventsConfig{Sources: []string{SourcePoll}, PollInterval: 50 * time.Millisecond},
		Admin:  admin.Config{Addr: "127.0.0.1:0"},
	}
}

func destinations(snap *routing.ConfigSnapshot) int {
	if snap == nil || len(snap.Clusters) == 0 {
		return 0
	}
	return len(snap.Clusters[0].Destinations)
}

func TestRunEndToEnd(t *testing.T) {
	reg := &fakeRegistry{}
	reg.setHosts(host("10.0.0.1"))
	srv := httptest.NewServer(reg)
	defer srv.Close()

	a, err := New(context.Background(), nil, testConfig(srv.URL), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	t.Run("启动后发布首个快照", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return a.Provider().Snapshot() != nil
		}, 3*time.Second, 10*time.Millisecond)

		snap := a.Provider().Snapshot()
		require.Len(t, snap.Routes, 1)
		assert.Equal(t, "/api/orders/{**catch-all}", snap.Routes[0].MatchPath)
		assert.Equal(t, 1, destinations(snap))
		assert.Equal(t, provider.StateReady, a.Provider().State())
	})

	t.Run("轮询发现实例变化后重建", func(t *testing.T) {
		reg.setHosts(host("10.0.0.1"), host("10.0.0.2"))
		assert.Eventually(t, func() bool {
			return destinations(a.Provider().Snapshot()) == 2
		}, 3*time.Second, 20*time.Millisecond)
	})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run 未在 ctx 取消后退出")
	}
	_, err = a.Provider().GetConfig(context.Background())
	assert.NoError(t, err, "关闭后已发布的快照仍可读取")
}

func TestRunWithoutGateway(t *testing.T) {
	reg := &fakeRegistry{}
	reg.setHosts(host("10.0.0.1"))
	srv := httptest.NewServer(reg)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Gateway = nil
	cfg.Events.Sources = nil

	a, err := New(context.Background(), nil, cfg, nil)
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, config.IsMissing(err))

	var loadErr *provider.ConfigLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, loadErr.Initial)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	t.Run("未知事件源", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Events.Sources = []string{"zookeeper"}
		_, err := New(context.Background(), nil, cfg, nil)
		assert.Error(t, err)
	})

	t.Run("未知镜像后端", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Mirror.Backends = []string{"s3"}
		_, err := New(context.Background(), nil, cfg, nil)
		assert.Error(t, err)
	})

	t.Run("未知编码", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Mirror.Backends = []string{BackendRedis}
		cfg.Mirror.Codec = "xml"
		_, err := New(context.Background(), nil, cfg, nil)
		assert.Error(t, err)
	})
}

func TestApplyGateway(t *testing.T) {
	reg := &fakeRegistry{}
	reg.setHosts(host("10.0.0.1"))
	srv := httptest.NewServer(reg)
	defer srv.Close()

	a, err := New(context.Background(), nil, testConfig(srv.URL), nil)
	require.NoError(t, err)

	snap, err := a.Provider().GetConfig(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Routes, 1)
	assert.Equal(t, "/api/orders/{**catch-all}", snap.Routes[0].MatchPath)
	defer a.Provider().Close(context.Background())

	fired := make(chan struct{}, 1)
	sub := a.hub.Subscribe(func() { fired <- struct{}{} })
	defer sub.Dispose()

	a.loader = staticLoader{gateway: map[string]any{"prefix": "/v2"}}
	a.applyGateway(config.Event{Key: GatewayKey, Source: "file"})

	assert.Equal(t, "/v2", a.gateway.Load().Prefix)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("网关配置变化后未触发重建")
	}

	t.Run("新快照使用新前缀", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			snap := a.Provider().Snapshot()
			return snap != nil && len(snap.Routes) == 1 && snap.Routes[0].MatchPath == "/v2/orders/{**catch-all}"
		}, 3*time.Second, 10*time.Millisecond)
		assert.Greater(t, a.Provider().Snapshot().Revision, snap.Revision)
	})

	t.Run("解码失败保留原选项", func(t *testing.T) {
		a.loader = staticLoader{gateway: map[string]any{"services": "not-a-list"}}
		a.applyGateway(config.Event{Key: GatewayKey, Source: "file"})
		assert.Equal(t, "/v2", a.gateway.Load().Prefix)
	})
}

// staticLoader 只支持 UnmarshalKey
type staticLoader struct {
	config.Loader
	gateway map[string]any
}

func (s staticLoader) UnmarshalKey(_ string, v any) error {
	raw, err := json.Marshal(s.gateway)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
