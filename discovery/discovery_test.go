package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/routesync/naming"
	"github.com/ceyewan/routesync/routing"
)

// fakeRegistry 按分组返回固定数量的服务，每个服务一个实例
type fakeRegistry struct {
	mu          sync.Mutex
	total       map[string]int
	failGroup   string
	listCalls   map[string][]int
	healthyOnly []bool
}

func newFakeRegistry(total map[string]int) *fakeRegistry {
	return &fakeRegistry{total: total, listCalls: map[string][]int{}}
}

func (f *fakeRegistry) GetServiceList(_ context.Context, pageNo, pageSize int, group string, _ *naming.Selector) (*naming.ServiceList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls[group] = append(f.listCalls[group], pageNo)

	if group == f.failGroup {
		return nil, errors.New("registry down")
	}
	count := f.total[group]
	list := &naming.ServiceList{Count: count}
	for i := (pageNo - 1) * pageSize; i < count && i < pageNo*pageSize; i++ {
		list.Doms = append(list.Doms, fmt.Sprintf("svc_%d", i))
	}
	return list, nil
}

func (f *fakeRegistry) QueryInstances(_ context.Context, service, group, _ string, _ int, healthyOnly bool) (*naming.ServiceInfo, error) {
	f.mu.Lock()
	f.healthyOnly = append(f.healthyOnly, healthyOnly)
	f.mu.Unlock()

	key := routing.NewServiceKey(service, group)
	return &naming.ServiceInfo{
		Name: key.GroupedName(),
		Hosts: []routing.ServiceInstance{
			{IP: "10.0.0.1", Port: 80, Healthy: true, Enabled: true, ServiceName: key.GroupedName()},
		},
	}, nil
}

func TestFetchAllInstances(t *testing.T) {
	ctx := context.Background()

	t.Run("没有分组返回 nil", func(t *testing.T) {
		agg := New(newFakeRegistry(nil), nil, 10)
		instances, err := agg.FetchAllInstances(ctx)
		require.NoError(t, err)
		assert.Nil(t, instances)
	})

	t.Run("总数 150 页大小 100 恰好请求两页", func(t *testing.T) {
		reg := newFakeRegistry(map[string]int{"g": 150})
		agg := New(reg, []string{"g"}, 100)

		instances, err := agg.FetchAllInstances(ctx)
		require.NoError(t, err)
		assert.Len(t, instances, 150)
		assert.Equal(t, []int{1, 2}, reg.listCalls["g"])
	})

	t.Run("总数等于页大小只请求一页", func(t *testing.T) {
		reg := newFakeRegistry(map[string]int{"g": 100})
		agg := New(reg, []string{"g"}, 100)

		_, err := agg.FetchAllInstances(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, reg.listCalls["g"])
	})

	t.Run("空分组不查询实例", func(t *testing.T) {
		reg := newFakeRegistry(map[string]int{"empty": 0})
		agg := New(reg, []string{"empty"}, 10)

		instances, err := agg.FetchAllInstances(ctx)
		require.NoError(t, err)
		assert.Empty(t, instances)
		assert.Empty(t, reg.healthyOnly)
	})

	t.Run("单个分组失败被跳过", func(t *testing.T) {
		reg := newFakeRegistry(map[string]int{"a": 2, "c": 3})
		reg.failGroup = "b"
		agg := New(reg, []string{"a", "b", "c"}, 10)

		instances, err := agg.FetchAllInstances(ctx)
		require.NoError(t, err)
		assert.Len(t, instances, 5)
		assert.Equal(t, "a@@svc_0", instances[0].ServiceName, "按分组顺序追加")
		assert.Equal(t, "c@@svc_0", instances[2].ServiceName)
	})

	t.Run("全量扫描只要健康实例", func(t *testing.T) {
		reg := newFakeRegistry(map[string]int{"g": 2})
		agg := New(reg, []string{"g"}, 10)

		_, err := agg.FetchAllInstances(ctx)
		require.NoError(t, err)
		assert.Equal(t, []bool{true, true}, reg.healthyOnly)
	})

	t.Run("ctx 取消后返回错误", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		agg := New(newFakeRegistry(map[string]int{"g": 1}), []string{"g"}, 10)
		_, err := agg.FetchAllInstances(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFetchService(t *testing.T) {
	reg := newFakeRegistry(nil)
	agg := New(reg, []string{"g"}, 10)

	instances, err := agg.FetchService(context.Background(), routing.NewServiceKey("svc_orders", ""))
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "DEFAULT_GROUP@@svc_orders", instances[0].ServiceName)
	assert.Equal(t, []bool{false}, reg.healthyOnly)
}

type staticServers []string

func (s staticServers) Servers() []string      { return s }
func (s staticServers) Domain() (string, bool) { return "", false }
func (s staticServers) ContextPath() string    { return "/nacos" }

// 与真实的命名服务客户端配合，验证翻页请求确实发到了注册中心
func TestFetchAllInstancesWithNamingClient(t *testing.T) {
	var mu sync.Mutex
	var pages []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nacos/v1/ns/service/list":
			mu.Lock()
			pages = append(pages, r.URL.Query().Get("pageNo"))
			mu.Unlock()
			if r.URL.Query().Get("pageNo") == "1" {
				_, _ = w.Write([]byte(`{"count":3,"doms":["svc_a","svc_b"]}`))
				return
			}
			_, _ = w.Write([]byte(`{"count":3,"doms":["svc_c"]}`))
		case "/nacos/v1/ns/instance/list":
			name := r.URL.Query().Get("serviceName")
			_, _ = fmt.Fprintf(w, `{"name":%q,"hosts":[{"ip":"10.0.0.9","port":80,"healthy":true,"enabled":true,"serviceName":%q}]}`, name, name)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := naming.New(naming.Config{}, staticServers{srv.URL})
	agg := New(client, []string{"DEFAULT_GROUP"}, 2)

	instances, err := agg.FetchAllInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 3)
	assert.Equal(t, "DEFAULT_GROUP@@svc_c", instances[2].ServiceName)
	assert.Equal(t, []string{"1", "2"}, pages)
}
