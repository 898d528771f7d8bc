package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	r        rate.Limit
	b        int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*visitor),
		r:        r,
		b:        b,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

// GetLimiter returns the bucket for ip and forgets buckets idle for too long.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	v, ok := i.limiters[ip]
	if !ok {
		if len(i.limiters) > 1024 {
			i.evict(now)
		}
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.limiters[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (i *IPRateLimiter) evict(now time.Time) {
	for ip, v := range i.limiters {
		if now.Sub(v.lastSeen) > i.idle {
			delete(i.limiters, ip)
		}
	}
}

// RateLimitMiddleware rejects requests over the per-IP budget. Paths in skip
// are never limited.
func RateLimitMiddleware(limiter *IPRateLimiter, logger *slog.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if !limiter.GetLimiter(clientIP).Allow() {
			logger.Warn("rate limit exceeded", "ip", clientIP, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "rate limit exceeded, please try again later",
				"data":    nil,
			})
			return
		}

		c.Next()
	}
}
