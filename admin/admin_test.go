package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/routesync/provider"
	"github.com/ceyewan/routesync/routing"
)

type fakeProvider struct {
	snap    *routing.ConfigSnapshot
	state   provider.State
	lastErr error
}

func (f *fakeProvider) Snapshot() *routing.ConfigSnapshot { return f.snap }
func (f *fakeProvider) State() provider.State             { return f.state }
func (f *fakeProvider) LastError() error                  { return f.lastErr }

type fakeProber bool

func (f fakeProber) ServerHealthy(context.Context) bool { return bool(f) }

func readySnapshot() *routing.ConfigSnapshot {
	key := routing.NewServiceKey("svc_orders", "")
	route, cluster := routing.NewBuilder(&routing.GatewayOptions{}, nil).Build(key, []routing.ServiceInstance{
		{IP: "10.0.0.1", Port: 80, Healthy: true, Enabled: true, ServiceName: key.GroupedName()},
	})
	return routing.NewSnapshot([]routing.RouteDefinition{route}, []routing.ClusterDefinition{cluster}, 4, nil)
}

func newTestServer(t *testing.T, p ConfigProvider, cfg Config, opts ...Option) http.Handler {
	t.Helper()
	s, err := New(cfg, p, nil, opts...)
	require.NoError(t, err)
	return s.Handler()
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	body := map[string]any{}
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, nil, nil)
	assert.Error(t, err)
}

func TestConfigEndpoint(t *testing.T) {
	t.Run("未加载时返回 503", func(t *testing.T) {
		h := newTestServer(t, &fakeProvider{}, Config{})
		w, body := get(t, h, "/config")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "uninitialized", body["state"])
	})

	t.Run("返回当前快照", func(t *testing.T) {
		h := newTestServer(t, &fakeProvider{snap: readySnapshot(), state: provider.StateReady}, Config{})
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var resp configResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, uint64(4), resp.Revision)
		assert.Equal(t, "ready", resp.State)
		require.Len(t, resp.Routes, 1)
		assert.Equal(t, "svc_ordersDEFAULT_GROUP", resp.Routes[0].RouteID)
		require.Len(t, resp.Clusters, 1)
		assert.Len(t, resp.Clusters[0].Destinations, 1)
	})
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		prober   RegistryProber
		wantCode int
		check    func(t *testing.T, body map[string]any)
	}{
		{
			name:     "未初始化",
			provider: &fakeProvider{},
			wantCode: http.StatusServiceUnavailable,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "uninitialized", body["state"])
				assert.NotContains(t, body, "revision")
			},
		},
		{
			name:     "就绪",
			provider: &fakeProvider{snap: readySnapshot(), state: provider.StateReady},
			prober:   fakeProber(true),
			wantCode: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(4), body["revision"])
				assert.Equal(t, true, body["registry_healthy"])
			},
		},
		{
			name:     "degraded 仍然就绪",
			provider: &fakeProvider{snap: readySnapshot(), state: provider.StateDegraded, lastErr: errors.New("registry down")},
			prober:   fakeProber(false),
			wantCode: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "degraded", body["state"])
				assert.Equal(t, "registry down", body["last_error"])
				assert.Equal(t, false, body["registry_healthy"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.prober != nil {
				opts = append(opts, WithProber(tt.prober))
			}
			h := newTestServer(t, tt.provider, Config{}, opts...)
			w, body := get(t, h, "/readyz")
			assert.Equal(t, tt.wantCode, w.Code)
			tt.check(t, body)
		})
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	h := newTestServer(t, &fakeProvider{}, Config{})

	w, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, &fakeProvider{}, Config{RateLimit: 1, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w, _ := get(t, h, "/healthz")
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
