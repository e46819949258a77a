package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter enforces per-client throttling on the public endpoints.
// With a Redis client it uses a shared fixed window so all replicas see
// one budget; without one it falls back to a local token bucket.
type RateLimiter struct {
	rpm    int
	redis  redis.UniversalClient
	logger *zap.Logger

	limit   rate.Limit
	burst   int
	window  time.Duration
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter for the provided requests-per-minute
// budget. A nil Redis client selects the in-memory fallback.
func NewRateLimiter(client redis.UniversalClient, requestsPerMinute int, logger *zap.Logger) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.L()
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rpm:     requestsPerMinute,
		redis:   client,
		logger:  logger,
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		window:  5 * time.Minute,
		clients: make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware enforcing throttling behaviour.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.allow(c.Request.Context(), c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(ctx context.Context, key string) bool {
	if r.redis != nil {
		return r.allowRedis(ctx, key)
	}
	return r.localLimiter(key).Allow()
}

// allowRedis counts requests in a per-minute window key. Redis failures
// fail open: throttling is protection, not a correctness requirement.
func (r *RateLimiter) allowRedis(ctx context.Context, key string) bool {
	window := time.Now().Unix() / 60
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := r.redis.Pipeline()
	count := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("rate limiter redis failure", zap.Error(err))
		return true
	}
	return count.Val() <= int64(r.rpm)
}

func (r *RateLimiter) localLimiter(key string) *rate.Limiter {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(r.limit, r.burst)
	r.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	r.cleanupLocked(now)
	return limiter
}

func (r *RateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.window {
			delete(r.clients, key)
		}
	}
}
