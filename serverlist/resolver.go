// Package serverlist 解析并刷新注册中心服务端地址。
//
// 两种模式：
//   - 静态：使用配置的地址列表；只有一个地址时它同时作为域名，用于兜底重试
//   - 发现：定期从地址服务器 http://{endpoint}{contextPath}/serverlist 拉取按行分隔的地址
//
// 刷新失败只记录日志并保留旧列表。
package serverlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/xerrors"
)

// Resolver 注册中心地址列表的持有者，地址列表整体替换，读取无锁
type Resolver struct {
	cfg    Config
	client *http.Client
	logger clog.Logger

	servers atomic.Pointer[[]string]
	domain  string

	// limiter 保证每个间隔最多成功拉取一次，refreshing 让并发触发合并为一次
	limiter    *rate.Limiter
	refreshing sync.Mutex
}

// New 初始化地址列表。发现模式下立即拉取一次，失败时列表为空，等待下次刷新
func New(ctx context.Context, cfg Config, opts ...Option) (*Resolver, error) {
	if len(cfg.ServerAddresses) == 0 && cfg.Endpoint == "" {
		return nil, ErrNoServer
	}
	cfg.setDefaults()

	o := options{logger: clog.Discard(), client: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Resolver{
		cfg:     cfg,
		client:  o.client,
		logger:  o.logger,
		limiter: rate.NewLimiter(rate.Every(cfg.RefreshInterval), 1),
	}

	if cfg.Endpoint == "" {
		servers := make([]string, 0, len(cfg.ServerAddresses))
		for _, addr := range cfg.ServerAddresses {
			if addr = strings.TrimSpace(addr); addr != "" {
				servers = append(servers, Normalize(addr, cfg.ServerPort))
			}
		}
		if len(servers) == 1 {
			r.domain = servers[0]
		}
		r.servers.Store(&servers)
		r.logger.Info("using static server list", clog.Strings("servers", servers))
		return r, nil
	}

	empty := []string{}
	r.servers.Store(&empty)
	r.RefreshIfNeeded(ctx)
	return r, nil
}

// Servers 当前地址列表，调用方不得修改
func (r *Resolver) Servers() []string {
	return *r.servers.Load()
}

// Domain 静态模式下唯一的地址，第二个返回值表示是否处于域名模式
func (r *Resolver) Domain() (string, bool) {
	return r.domain, r.domain != ""
}

// Discovery 是否为发现模式
func (r *Resolver) Discovery() bool {
	return r.cfg.Endpoint != ""
}

// ContextPath 注册中心接口的上下文路径
func (r *Resolver) ContextPath() string {
	return r.cfg.ContextPath
}

// RefreshIfNeeded 距上次成功拉取不足一个间隔，或已有拉取在进行时直接返回。
// 返回值表示列表是否被替换
func (r *Resolver) RefreshIfNeeded(ctx context.Context) bool {
	return r.refresh(ctx, false)
}

// refresh 只在拉取成功后消耗令牌，失败后的下一次触发可以立即重试。
// periodic 为 true 时不检查间隔，定时器与令牌补充的抖动不会让一次刷新被跳过
func (r *Resolver) refresh(ctx context.Context, periodic bool) bool {
	if !r.Discovery() {
		return false
	}
	if !r.refreshing.TryLock() {
		return false
	}
	defer r.refreshing.Unlock()

	if !periodic && r.limiter.Tokens() < 1 {
		return false
	}

	servers, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("failed to refresh server list, keeping previous",
			clog.Int("previous", len(r.Servers())), clog.Error(err))
		return false
	}

	// 定时刷新可能透支一个令牌，之后的触发顺延到下一个间隔
	r.limiter.Reserve()
	r.servers.Store(&servers)
	r.logger.Info("server list refreshed", clog.Strings("servers", servers))
	return true
}

// Run 发现模式下按间隔刷新，直到 ctx 结束；静态模式立即返回
func (r *Resolver) Run(ctx context.Context) {
	if !r.Discovery() {
		return
	}
	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx, true)
		}
	}
}

// BootstrapURL 地址服务器的完整 URL
func (r *Resolver) BootstrapURL() string {
	u := "http://" + r.cfg.Endpoint + r.cfg.ContextPath + "/serverlist"
	if r.cfg.Namespace != "" {
		u += "?namespace=" + url.QueryEscape(r.cfg.Namespace)
	}
	return u
}

func (r *Resolver) fetch(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	target := r.BootstrapURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, xerrors.Wrapf(err, "build request %s", target)
	}
	req.Header.Set("User-Agent", "routesync")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, xerrors.Wrapf(err, "request %s", target)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("request %s: server returned %d", target, resp.StatusCode)
	}

	return parseServerList(resp.Body, r.cfg.ServerPort)
}

// parseServerList 逐行读取，遇到空行停止
func parseServerList(body io.Reader, port int) ([]string, error) {
	var servers []string
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			break
		}
		servers = append(servers, Normalize(line, port))
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(err, "read server list")
	}
	if len(servers) == 0 {
		return nil, ErrEmptyServerList
	}
	return servers, nil
}

// Normalize 补全协议和端口："10.0.0.1" -> "http://10.0.0.1:8848"。
// 已带 http:// 或 https:// 的地址只去掉末尾的斜杠
func Normalize(addr string, port int) string {
	lower := strings.ToLower(addr)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return strings.TrimRight(addr, "/")
	}
	addr = strings.TrimRight(addr, "/")
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(port))
	}
	return "http://" + addr
}
