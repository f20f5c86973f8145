// Package naming 是注册中心命名服务的 HTTP 客户端。
//
// 一次逻辑调用在调用开始时取一份地址列表快照，从随机位置开始对每个服务端各尝试一次；
// 域名模式下全部失败后再对域名额外重试若干次。每次尝试都有独立的超时，
// 并注入访问令牌与 AK/SK 签名。
package naming

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/routesync/breaker"
	"github.com/ceyewan/routesync/clog"
	"github.com/ceyewan/routesync/metrics"
	"github.com/ceyewan/routesync/security"
	"github.com/ceyewan/routesync/trace"
	"github.com/ceyewan/routesync/xerrors"
)

const (
	clientVersion = "routesync/1.0"

	paramNamespace   = "namespaceId"
	paramServiceName = "serviceName"
	paramAccessToken = "accessToken"
	paramApp         = "app"
	paramSignature   = "signature"
	paramData        = "data"
	paramAccessKey   = "ak"

	signSeparator = "@@"
)

// ServerSource 提供服务端地址，*serverlist.Resolver 满足此接口
type ServerSource interface {
	Servers() []string
	Domain() (string, bool)
	ContextPath() string
}

// Client 命名服务客户端，可并发使用
type Client struct {
	cfg     Config
	servers ServerSource
	tokens  security.TokenProvider
	breaker breaker.Breaker
	http    *http.Client
	logger  clog.Logger
	tracer  oteltrace.Tracer

	requests metrics.Counter
	duration metrics.Histogram

	now        func() time.Time
	startIndex func(n int) int
}

// New 创建客户端
func New(cfg Config, servers ServerSource, opts ...Option) *Client {
	cfg.setDefaults()

	o := options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		tokens: security.None,
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	requests, _ := o.meter.Counter(metrics.MetricNamingRequests, "Naming server request attempts")
	duration, _ := o.meter.Histogram(metrics.MetricNamingRequestDuration, "Naming server request attempt latency",
		metrics.WithUnit("s"), metrics.WithBuckets([]float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 8}))

	return &Client{
		cfg:        cfg,
		servers:    servers,
		tokens:     o.tokens,
		breaker:    o.breaker,
		http:       o.client,
		logger:     o.logger,
		tracer:     otel.Tracer("routesync/naming"),
		requests:   requests,
		duration:   duration,
		now:        time.Now,
		startIndex: rand.IntN,
	}
}

// Call 请求 {server}{contextPath}/v1/ns{pathAndQuery}。
// GET 请求的 body 参数并入查询串，其他方法以表单提交。
// 所有尝试都失败时返回带 NAMING_EXHAUSTED 错误码的 *ExhaustedServersError
func (c *Client) Call(ctx context.Context, pathAndQuery string, params, body url.Values, method string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "naming.call "+pathAndQuery, oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	defer span.End()

	params = cloneValues(params)
	params.Set(paramNamespace, c.cfg.Namespace)
	// 令牌在整个调用内只获取一次，不占用单次尝试的超时
	c.injectToken(ctx, params)

	// 本次调用固定使用这一份列表，刷新不影响进行中的调用
	servers := c.servers.Servers()
	domain, isDomain := c.servers.Domain()

	var last *TransientNetworkError
	attempts := 0

	if n := len(servers); n > 0 {
		index := c.startIndex(n)
		for i := 0; i < n; i++ {
			server := servers[index]
			attempts++
			resp, err := c.attempt(ctx, server, pathAndQuery, params, body, method)
			if err == nil {
				span.SetAttributes(attribute.Int("naming.attempts", attempts))
				return resp, nil
			}
			last = err
			c.logger.DebugContext(ctx, "request failed, trying next server", clog.String("server", server), clog.Error(err))
			index = (index + 1) % n
		}
	}

	if isDomain {
		for i := 0; i < c.cfg.DomainRetry; i++ {
			attempts++
			resp, err := c.attempt(ctx, domain, pathAndQuery, params, body, method)
			if err == nil {
				span.SetAttributes(attribute.Int("naming.attempts", attempts))
				return resp, nil
			}
			last = err
			c.logger.DebugContext(ctx, "domain request failed", clog.String("server", domain), clog.Error(err))
		}
	}

	err := exhausted(pathAndQuery, attempts, last)
	trace.MarkSpanError(span, err)
	c.logger.ErrorContext(ctx, "request failed on all servers",
		clog.String("path", pathAndQuery), clog.Strings("servers", servers), clog.Int("attempts", attempts), clog.Error(err))
	return nil, err
}

// attempt 对单个服务端发起一次请求，启用熔断时由熔断器包裹
func (c *Client) attempt(ctx context.Context, server, pathAndQuery string, params, body url.Values, method string) ([]byte, *TransientNetworkError) {
	start := c.now()
	var (
		resp []byte
		terr *TransientNetworkError
	)

	if c.breaker == nil {
		resp, terr = c.do(ctx, server, pathAndQuery, params, body, method)
	} else {
		out, err := c.breaker.Execute(ctx, server, func() (any, error) {
			b, e := c.do(ctx, server, pathAndQuery, params, body, method)
			if e != nil {
				return nil, e
			}
			return b, nil
		})
		switch {
		case err == nil:
			resp, _ = out.([]byte)
		case xerrors.As(err, &terr):
		default:
			terr = &TransientNetworkError{Server: server, Message: err.Error(), Cause: err}
		}
	}

	outcome := metrics.OutcomeSuccess
	if terr != nil {
		outcome = metrics.OutcomeError
	}
	c.requests.Inc(ctx, metrics.L(metrics.LabelServer, server), metrics.L(metrics.LabelOutcome, outcome))
	c.duration.Record(ctx, c.now().Sub(start).Seconds(), metrics.L(metrics.LabelServer, server))
	return resp, terr
}

func (c *Client) do(ctx context.Context, server, pathAndQuery string, params, body url.Values, method string) ([]byte, *TransientNetworkError) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	// 同一个 RequestId 写入请求头和本次尝试的日志
	ctx = clog.WithRequestID(ctx, uuid.NewString())

	query := cloneValues(params)
	c.injectSecurity(query)

	var reqBody io.Reader
	if method == http.MethodGet || method == "" {
		method = http.MethodGet
		for k, vs := range body {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
	} else if len(body) > 0 {
		reqBody = strings.NewReader(body.Encode())
	}

	target := strings.TrimRight(server, "/") + c.servers.ContextPath() + APIBase + pathAndQuery
	if encoded := query.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(pathAndQuery, "?") {
			sep = "&"
		}
		target += sep + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, &TransientNetworkError{Server: server, Message: err.Error(), Cause: err}
	}
	c.setHeaders(ctx, req, reqBody != nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransientNetworkError{Server: server, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientNetworkError{Server: server, Status: resp.StatusCode, Message: err.Error(), Cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotModified:
		return nil, nil
	default:
		c.logger.DebugContext(ctx, "unexpected registry status", clog.String("server", server), clog.Int("status", resp.StatusCode))
		return nil, &TransientNetworkError{
			Server:  server,
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(data)),
			Cause:   ErrUnexpectedStatus,
		}
	}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, form bool) {
	req.Header.Set("Client-Version", clientVersion)
	req.Header.Set("User-Agent", clientVersion)
	req.Header.Set("RequestId", clog.RequestIDFrom(ctx))
	req.Header.Set("Request-Module", "Naming")
	req.Header.Set("Accept-Encoding", "gzip,deflate,sdch")
	req.Header.Set("Connection", "Keep-Alive")
	if form {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	}

	carrier := map[string]string{}
	trace.Inject(ctx, carrier)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}
}

func (c *Client) injectToken(ctx context.Context, params url.Values) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to obtain access token", clog.Error(err))
	}
	if token != "" {
		params.Set(paramAccessToken, token)
	}
}

// injectSecurity 注入 app 以及 AK/SK 签名，每次尝试重新计算时间戳
func (c *Client) injectSecurity(params url.Values) {
	params.Set(paramApp, c.cfg.AppName)
	if c.cfg.AccessKey == "" || c.cfg.SecretKey == "" {
		return
	}
	data, signature := Sign(c.cfg.SecretKey, c.now(), params.Get(paramServiceName))
	params.Set(paramSignature, signature)
	params.Set(paramData, data)
	params.Set(paramAccessKey, c.cfg.AccessKey)
}

// Sign 计算签名：data 为毫秒时间戳，带服务名时为 "{millis}@@{serviceName}"，
// signature 为 base64(HMAC-SHA1(secretKey, data))
func Sign(secretKey string, now time.Time, serviceName string) (data, signature string) {
	data = strconv.FormatInt(now.UnixMilli(), 10)
	if serviceName != "" {
		data += signSeparator + serviceName
	}
	mac := hmac.New(sha1.New, []byte(secretKey))
	mac.Write([]byte(data))
	return data, base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+8)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
