// Package security 为注册中心管理接口提供访问令牌。
//
// 配置了固定 token 时使用 Static；配置了用户名时使用 LoginProvider，
// 它登录任一服务端获取 token，并在 TTL 的 90% 到期后重新登录。
package security

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/xerrors"
)

// TokenProvider 返回当前可用的访问令牌，没有令牌时返回空串
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Static 固定令牌
type Static string

func (s Static) AccessToken(context.Context) (string, error) {
	return string(s), nil
}

// None 不注入令牌
var None TokenProvider = Static("")

// ErrLoginFailed 所有服务端都登录失败
var ErrLoginFailed = xerrors.New("security: login failed on all servers")

const (
	// DefaultTokenTTL 服务端既没有返回 tokenTtl、token 也不是带 exp 的 JWT 时使用
	DefaultTokenTTL = 5 * time.Hour
	// refreshRatio TTL 过去这个比例后重新登录
	refreshRatio = 0.9

	loginPath = "/v1/auth/users/login"
	tokenKey  = "accessToken"
)

// ServerSource 登录时遍历的服务端，*serverlist.Resolver 满足此接口
type ServerSource interface {
	Servers() []string
	ContextPath() string
}

// LoginProvider 用户名密码登录，token 缓存在 otter 中按写入时间过期
type LoginProvider struct {
	servers  ServerSource
	username string
	password string
	client   *http.Client
	timeout  time.Duration
	logger   clog.Logger
	now      func() time.Time

	cache *otter.Cache[string, string]
	mu    sync.Mutex
}

// Option LoginProvider 选项
type Option func(*LoginProvider)

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(p *LoginProvider) {
		if logger != nil {
			p.logger = logger.WithNamespace("security")
		}
	}
}

// WithHTTPClient 替换登录使用的 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(p *LoginProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithTimeout 单次登录请求的超时，默认 5s
func WithTimeout(d time.Duration) Option {
	return func(p *LoginProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewLoginProvider 创建登录型令牌提供者，首次 AccessToken 调用时才登录
func NewLoginProvider(servers ServerSource, username, password string, opts ...Option) (*LoginProvider, error) {
	if username == "" {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "security: username is required")
	}

	cache, err := otter.New(&otter.Options[string, string]{
		MaximumSize:      1,
		ExpiryCalculator: otter.ExpiryWriting[string, string](DefaultTokenTTL),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to build token cache")
	}

	p := &LoginProvider{
		servers:  servers,
		username: username,
		password: password,
		client:   &http.Client{},
		timeout:  5 * time.Second,
		logger:   clog.Discard(),
		now:      time.Now,
		cache:    cache,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AccessToken 缓存未命中时登录，并发调用只登录一次
func (p *LoginProvider) AccessToken(ctx context.Context) (string, error) {
	if token, ok := p.cache.GetIfPresent(tokenKey); ok {
		return token, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token, ok := p.cache.GetIfPresent(tokenKey); ok {
		return token, nil
	}

	token, ttl, err := p.login(ctx)
	if err != nil {
		return "", err
	}

	p.cache.Set(tokenKey, token)
	p.cache.SetExpiresAfter(tokenKey, time.Duration(float64(ttl)*refreshRatio))
	p.logger.Info("logged in to naming server", clog.Duration("ttl", ttl))
	return token, nil
}

// Invalidate 丢弃缓存的令牌，下次调用重新登录
func (p *LoginProvider) Invalidate() {
	p.cache.Invalidate(tokenKey)
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenTTL    int64  `json:"tokenTtl"` // 秒
	GlobalAdmin bool   `json:"globalAdmin"`
}

func (p *LoginProvider) login(ctx context.Context) (string, time.Duration, error) {
	servers := p.servers.Servers()
	var errs []error
	for _, server := range servers {
		token, ttl, err := p.loginOnce(ctx, server)
		if err == nil {
			return token, ttl, nil
		}
		p.logger.Warn("login failed", clog.String("server", server), clog.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", 0, xerrors.Wrap(ErrLoginFailed, "no server available")
	}
	return "", 0, xerrors.Wrap(ErrLoginFailed, xerrors.Combine(errs...).Error())
}

func (p *LoginProvider) loginOnce(ctx context.Context, server string) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	form := url.Values{"username": {p.username}, "password": {p.password}}
	target := strings.TrimRight(server, "/") + p.servers.ContextPath() + loginPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, xerrors.New(resp.Status + ": " + strings.TrimSpace(string(body)))
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return "", 0, xerrors.Wrap(err, "decode login response")
	}
	if lr.AccessToken == "" {
		return "", 0, xerrors.New("login response has no accessToken")
	}

	return lr.AccessToken, p.tokenTTL(lr), nil
}

// tokenTTL 优先使用 tokenTtl，其次从 JWT 的 exp 推算
func (p *LoginProvider) tokenTTL(lr loginResponse) time.Duration {
	if lr.TokenTTL > 0 {
		return time.Duration(lr.TokenTTL) * time.Second
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(lr.AccessToken, claims); err == nil && claims.ExpiresAt != nil {
		if ttl := claims.ExpiresAt.Sub(p.now()); ttl > 0 {
			return ttl
		}
	}
	return DefaultTokenTTL
}
