// Package httpmiddleware holds gin middleware shared by the API binary.
package httpmiddleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// IPLimiter is an in-memory per-IP token bucket. State lives in the
// process, so limits apply per replica; move the counters to redis before
// scaling the API horizontally.
type IPLimiter struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewIPLimiter creates a limiter allowing perMinute requests per caller IP,
// with bursts up to capacity.
func NewIPLimiter(capacity, perMinute int) *IPLimiter {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &IPLimiter{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
	}
}

// Gin returns the middleware. Webhook callbacks are exempt: throttling the
// verifier would strand pending verification records.
func (l *IPLimiter) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/v1/webhooks/") {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip, time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *IPLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true
	}
	refill := int(now.Sub(b.last).Minutes() * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}
