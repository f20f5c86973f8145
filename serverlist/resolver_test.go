package serverlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bootstrapServer struct {
	*httptest.Server
	hits   atomic.Int32
	status atomic.Int32
	body   atomic.Value
	query  atomic.Value
}

func newBootstrapServer(t *testing.T, body string) *bootstrapServer {
	t.Helper()
	b := &bootstrapServer{}
	b.status.Store(http.StatusOK)
	b.body.Store(body)
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		b.query.Store(r.URL.RawQuery)
		if r.URL.Path != "/nacos/serverlist" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(int(b.status.Load()))
		_, _ = w.Write([]byte(b.body.Load().(string)))
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *bootstrapServer) endpoint() string {
	return strings.TrimPrefix(b.URL, "http://")
}

func TestStaticMode(t *testing.T) {
	ctx := context.Background()

	t.Run("多个地址", func(t *testing.T) {
		r, err := New(ctx, Config{ServerAddresses: []string{"10.0.0.1:8848", "10.0.0.2", "https://nacos.example.com/"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://10.0.0.1:8848", "http://10.0.0.2:8848", "https://nacos.example.com"}, r.Servers())
		_, ok := r.Domain()
		assert.False(t, ok)
		assert.False(t, r.RefreshIfNeeded(ctx), "静态模式不刷新")
	})

	t.Run("单个地址同时作为域名", func(t *testing.T) {
		r, err := New(ctx, Config{ServerAddresses: []string{"nacos.internal"}})
		require.NoError(t, err)
		domain, ok := r.Domain()
		assert.True(t, ok)
		assert.Equal(t, "http://nacos.internal:8848", domain)
		assert.Equal(t, []string{domain}, r.Servers())
	})

	t.Run("环境变量覆盖默认端口", func(t *testing.T) {
		t.Setenv(ServerPortEnv, "9848")
		r, err := New(ctx, Config{ServerAddresses: []string{"10.0.0.1"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"http://10.0.0.1:9848"}, r.Servers())
	})

	t.Run("没有任何地址", func(t *testing.T) {
		_, err := New(ctx, Config{})
		assert.ErrorIs(t, err, ErrNoServer)
	})
}

func TestDiscoveryMode(t *testing.T) {
	ctx := context.Background()
	b := newBootstrapServer(t, "10.0.0.1:8848\n https://10.0.0.2:8848 \n\n10.0.0.9\n")

	r, err := New(ctx, Config{Endpoint: b.endpoint(), Namespace: "dev", RefreshInterval: time.Minute})
	require.NoError(t, err)

	assert.True(t, r.Discovery())
	assert.Equal(t, []string{"http://10.0.0.1:8848", "https://10.0.0.2:8848"}, r.Servers(), "空行之后的内容被忽略")
	assert.Equal(t, "namespace=dev", b.query.Load())
	_, ok := r.Domain()
	assert.False(t, ok)

	t.Run("并发触发在一个间隔内只拉取一次", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.RefreshIfNeeded(ctx)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), b.hits.Load())
	})
}

func TestRefreshFailureKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	b := newBootstrapServer(t, "10.0.0.1:8848\n")

	r, err := New(ctx, Config{Endpoint: b.endpoint(), RefreshInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	require.Len(t, r.Servers(), 1)

	b.status.Store(http.StatusInternalServerError)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.RefreshIfNeeded(ctx))
	assert.Equal(t, []string{"http://10.0.0.1:8848"}, r.Servers())

	b.status.Store(http.StatusOK)
	b.body.Store("")
	time.Sleep(20 * time.Millisecond)
	assert.False(t, r.RefreshIfNeeded(ctx), "空列表同样视为失败")
	assert.Len(t, r.Servers(), 1)

	b.body.Store("10.0.0.3:8848\n10.0.0.4:8848")
	time.Sleep(20 * time.Millisecond)
	assert.True(t, r.RefreshIfNeeded(ctx))
	assert.Equal(t, []string{"http://10.0.0.3:8848", "http://10.0.0.4:8848"}, r.Servers())
}

func TestInitialFetchFailure(t *testing.T) {
	b := newBootstrapServer(t, "")
	b.status.Store(http.StatusServiceUnavailable)

	r, err := New(context.Background(), Config{Endpoint: b.endpoint()})
	require.NoError(t, err, "首次拉取失败不影响初始化")
	assert.Empty(t, r.Servers())
}

func TestRecoverAfterInitialFailure(t *testing.T) {
	ctx := context.Background()
	b := newBootstrapServer(t, "10.0.0.1:8848\n")
	b.status.Store(http.StatusInternalServerError)

	r, err := New(ctx, Config{Endpoint: b.endpoint(), RefreshInterval: time.Hour})
	require.NoError(t, err)
	require.Empty(t, r.Servers())
	require.Equal(t, int32(1), b.hits.Load())

	t.Run("失败不占用刷新间隔", func(t *testing.T) {
		b.status.Store(http.StatusOK)
		assert.True(t, r.RefreshIfNeeded(ctx))
		assert.Equal(t, []string{"http://10.0.0.1:8848"}, r.Servers())
		assert.Equal(t, int32(2), b.hits.Load())
	})

	t.Run("成功后进入节流", func(t *testing.T) {
		assert.False(t, r.RefreshIfNeeded(ctx))
		assert.Equal(t, int32(2), b.hits.Load())
	})

	t.Run("定时刷新不受节流影响", func(t *testing.T) {
		b.body.Store("10.0.0.2:8848\n")
		assert.True(t, r.refresh(ctx, true))
		assert.Equal(t, []string{"http://10.0.0.2:8848"}, r.Servers())
	})
}

func TestRun(t *testing.T) {
	b := newBootstrapServer(t, "10.0.0.1:8848\n")
	r, err := New(context.Background(), Config{Endpoint: b.endpoint(), RefreshInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return b.hits.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run 未在取消后退出")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.0.0.1", "http://10.0.0.1:8848"},
		{"10.0.0.1:9000", "http://10.0.0.1:9000"},
		{"HTTPS://a.example.com/", "HTTPS://a.example.com"},
		{"[::1]", "http://[::1]:8848"},
		{"[::1]:9000", "http://[::1]:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, DefaultServerPort))
		})
	}
}
