package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP. Once the map holds
// more than maxVisitors buckets, those idle for longer than idleTTL are swept,
// at most once per idleTTL.
type IPRateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*visitor
	limit       rate.Limit
	burst       int
	idleTTL     time.Duration
	maxVisitors int
	lastSweep   time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(limit rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters:    make(map[string]*visitor),
		limit:       limit,
		burst:       burst,
		idleTTL:     10 * time.Minute,
		maxVisitors: 10_000,
	}
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = v
	}
	v.lastSeen = now

	if len(l.limiters) > l.maxVisitors && now.Sub(l.lastSweep) >= l.idleTTL {
		l.lastSweep = now
		for key, candidate := range l.limiters {
			if now.Sub(candidate.lastSeen) > l.idleTTL {
				delete(l.limiters, key)
			}
		}
	}
	return v.limiter
}

func (l *IPRateLimiter) Middleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.get(ip).Allow() {
			log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, try again later"})
			return
		}
		c.Next()
	}
}
