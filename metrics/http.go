package metrics

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/routesync/xerrors"
)

// 管理端 HTTP 指标名
const (
	MetricAdminRequests        = "admin_http_requests_total"
	MetricAdminRequestDuration = "admin_http_request_duration_seconds"
)

// 管理端接口都很轻，桶集中在毫秒级
var adminDurationBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1}

// HTTPMetrics 管理端的请求数与耗时，按路由模板、状态类和结果打标签
type HTTPMetrics struct {
	requests Counter
	duration Histogram
}

// NewHTTPMetrics 在 m 上注册管理端指标
func NewHTTPMetrics(m Meter) (*HTTPMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "meter is nil")
	}
	requests, err := m.Counter(MetricAdminRequests, "Admin HTTP requests by route and outcome")
	if err != nil {
		return nil, xerrors.Wrap(err, "create admin request counter")
	}
	duration, err := m.Histogram(MetricAdminRequestDuration, "Admin HTTP request latency",
		WithUnit("s"), WithBuckets(adminDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create admin duration histogram")
	}
	return &HTTPMetrics{requests: requests, duration: duration}, nil
}

// Observe 记录一次请求，route 为空时记为 UnknownRoute
func (h *HTTPMetrics) Observe(ctx context.Context, route string, status int, elapsed time.Duration) {
	if h == nil {
		return
	}
	if route == "" {
		route = UnknownRoute
	}
	labels := []Label{
		L(LabelRoute, route),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, HTTPOutcome(status)),
	}
	h.requests.Inc(ctx, labels...)
	h.duration.Record(ctx, elapsed.Seconds(), labels...)
}

// Middleware gin 中间件。路由取 FullPath 模板，未命中的路径统一记为 unknown，
// 避免原始 URL 进入标签
func (h *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		h.Observe(c.Request.Context(), c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
