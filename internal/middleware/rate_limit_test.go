package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trendforge/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRouter(limiter *IPRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter, logging.Nop(), "/health"))
	r.GET("/items", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r http.Handler, path, ip string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitMiddleware_PerIP(t *testing.T) {
	r := newRouter(NewIPRateLimiter(rate.Every(time.Hour), 2))

	assert.Equal(t, http.StatusOK, serve(r, "/items", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, serve(r, "/items", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/items", "10.0.0.1"))

	assert.Equal(t, http.StatusOK, serve(r, "/items", "10.0.0.2"))
}

func TestRateLimitMiddleware_SkipsHealth(t *testing.T) {
	r := newRouter(NewIPRateLimiter(rate.Every(time.Hour), 1))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(r, "/health", "10.0.0.1"))
	}
}

func TestIPRateLimiter_EvictsIdleVisitors(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1), 1)
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }

	first := l.GetLimiter("a")
	assert.Same(t, first, l.GetLimiter("a"))

	clock = clock.Add(time.Hour)
	l.mu.Lock()
	l.evict(clock)
	l.mu.Unlock()
	assert.NotSame(t, first, l.GetLimiter("a"))
}
