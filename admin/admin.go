// Package admin 是 routesync 的管理端 HTTP 服务。
//
//	GET /config   当前快照（路由、集群、修订号、状态）
//	GET /healthz  进程存活
//	GET /readyz   已发布过快照时返回 200，degraded 同样视为就绪
//	GET /metrics  Prometheus 指标
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/provider"
	"github.com/ceyewan/routesync/routing"
	"github.com/ceyewan/routesync/xerrors"
)

const (
	// DefaultAddr 默认监听地址
	DefaultAddr = ":8080"

	probeTimeout    = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

// ConfigProvider 管理端读取的快照状态，*provider.Provider 满足此接口
type ConfigProvider interface {
	Snapshot() *routing.ConfigSnapshot
	State() provider.State
	LastError() error
}

// RegistryProber 探测注册中心是否可用，*naming.Client 满足此接口
type RegistryProber interface {
	ServerHealthy(ctx context.Context) bool
}

// Config 管理端配置
type Config struct {
	Addr        string  `mapstructure:"addr"`
	ServiceName string  `mapstructure:"service_name"`
	RateLimit   float64 `mapstructure:"rate_limit"` // 每个客户端每秒请求数，0 表示不限流
	Burst       int     `mapstructure:"burst"`
}

// Server 管理端服务
type Server struct {
	cfg      Config
	provider ConfigProvider
	prober   RegistryProber
	logger   clog.Logger
	engine   *gin.Engine
	server   *http.Server
}

// Option 管理端选项
type Option func(*Server)

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.WithNamespace("admin")
		}
	}
}

// WithProber /readyz 附带注册中心探测结果
func WithProber(p RegistryProber) Option {
	return func(s *Server) {
		s.prober = p
	}
}

// New 创建服务并注册路由，httpMetrics 为 nil 时不记录 RED 指标
func New(cfg Config, p ConfigProvider, httpMetrics *metrics.HTTPMetrics, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "config provider is nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "routesync-admin"
	}

	s := &Server{cfg: cfg, provider: p, logger: clog.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), httpMetrics.Middleware())
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit) + 1
		}
		limiter, err := newClientLimiter(cfg.RateLimit, burst)
		if err != nil {
			return nil, xerrors.Wrap(err, "create admin rate limiter")
		}
		engine.Use(limiter.middleware())
	}

	engine.GET("/config", s.handleConfig)
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/readyz", s.handleReadyz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler 供测试直接驱动
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", clog.String("addr", s.cfg.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return xerrors.Wrap(err, "admin server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return xerrors.Wrap(err, "shutdown admin server")
	}
	s.logger.Info("admin server stopped")
	return nil
}

type configResponse struct {
	Revision uint64                      `json:"revision"`
	State    string                      `json:"state"`
	Routes   []routing.RouteDefinition   `json:"routes"`
	Clusters []routing.ClusterDefinition `json:"clusters"`
}

func (s *Server) handleConfig(c *gin.Context) {
	snap := s.provider.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "config not loaded", "state": s.provider.State().String()})
		return
	}
	c.JSON(http.StatusOK, configResponse{
		Revision: snap.Revision,
		State:    s.provider.State().String(),
		Routes:   snap.Routes,
		Clusters: snap.Clusters,
	})
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReadyz(c *gin.Context) {
	state := s.provider.State()
	body := gin.H{"state": state.String()}

	if snap := s.provider.Snapshot(); snap != nil {
		body["revision"] = snap.Revision
		body["routes"] = len(snap.Routes)
	}
	if err := s.provider.LastError(); err != nil {
		body["last_error"] = err.Error()
	}
	if s.prober != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		body["registry_healthy"] = s.prober.ServerHealthy(ctx)
		cancel()
	}

	status := http.StatusOK
	if state == provider.StateUninitialized {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}
