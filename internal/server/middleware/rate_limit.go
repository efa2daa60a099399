package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"janua/engine/internal/tenant"
)

// limiters is the per-key token-bucket store. Keys are authenticated user
// ids when available, client IPs otherwise.
type limiters struct {
	store sync.Map // map[string]*rate.Limiter
	rps   float64
	burst int
}

func (l *limiters) get(key string) *rate.Limiter {
	if v, ok := l.store.Load(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, _ := l.store.LoadOrStore(key, lim)
	return actual.(*rate.Limiter)
}

// RateLimit returns a Gin middleware enforcing a per-key token-bucket limit.
// rps <= 0 disables the middleware.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	l := &limiters{rps: rps, burst: burst}
	return func(c *gin.Context) {
		key := ""
		if userID, ok := tenant.UserID(c.Request.Context()); ok {
			key = "user:" + userID
		}
		if key == "" {
			ip := c.ClientIP()
			if ip == "" {
				ip = "unknown"
			}
			key = "ip:" + ip
		}
		if !l.get(key).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
