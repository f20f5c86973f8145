package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/maypok86/otter/v2"
	"golang.org/x/time/rate"
)

// clientIdleTimeout 客户端多久没有请求后丢弃它的限流器
const clientIdleTimeout = 10 * time.Minute

// clientLimiter 按客户端 IP 的令牌桶
type clientLimiter struct {
	limit rate.Limit
	burst int
	cache *otter.Cache[string, *rate.Limiter]
}

func newClientLimiter(qps float64, burst int) (*clientLimiter, error) {
	cache, err := otter.New(&otter.Options[string, *rate.Limiter]{
		MaximumSize:      10_000,
		ExpiryCalculator: otter.ExpiryAccessing[string, *rate.Limiter](clientIdleTimeout),
	})
	if err != nil {
		return nil, err
	}
	return &clientLimiter{limit: rate.Limit(qps), burst: burst, cache: cache}, nil
}

func (l *clientLimiter) allow(key string) bool {
	limiter, ok := l.cache.GetIfPresent(key)
	if !ok {
		limiter, _ = l.cache.SetIfAbsent(key, rate.NewLimiter(l.limit, l.burst))
	}
	return limiter.Allow()
}

// middleware 超出限额返回 429
func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
