package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter counts requests in Redis when it is reachable and falls back
// to an in-process token bucket per key otherwise.
type RateLimiter struct {
	redisClient *redis.Client
	now         func() time.Time

	mu        sync.Mutex
	local     map[string]*localBucket
	lastSweep time.Time
}

// localBucket is idle once a full window has passed since lastSeen; by then it has refilled
type localBucket struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// localSweepInterval is how often idle local buckets are dropped
const localSweepInterval = time.Minute

type RateLimit struct {
	Scope    string        // Separates counters of different limits
	Requests int           // Number of requests
	Window   time.Duration // Time window
}

// NewRateLimiter creates a limiter. A nil client limits in process only.
func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		now:         time.Now,
		local:       make(map[string]*localBucket),
	}
}

func (rl *RateLimiter) Limit(limit RateLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		rl.enforce(c, rl.key(limit, "ip:"+c.ClientIP()), limit)
	}
}

// PerUserLimit keys on the authenticated staff user, or the client IP before authentication
func (rl *RateLimiter) PerUserLimit(limit RateLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := "ip:" + c.ClientIP()
		if userID := GetUserID(c); userID != 0 {
			subject = "user:" + strconv.Itoa(userID)
		}
		rl.enforce(c, rl.key(limit, subject), limit)
	}
}

func (rl *RateLimiter) AuthLimit() gin.HandlerFunc {
	return rl.Limit(RateLimit{
		Scope:    "auth",
		Requests: 5,
		Window:   time.Minute,
	})
}

func (rl *RateLimiter) APILimit() gin.HandlerFunc {
	return rl.PerUserLimit(RateLimit{
		Scope:    "api",
		Requests: 100,
		Window:   time.Minute,
	})
}

func (rl *RateLimiter) key(limit RateLimit, subject string) string {
	scope := limit.Scope
	if scope == "" {
		scope = "default"
	}
	return fmt.Sprintf("rate_limit:%s:%s", scope, subject)
}

func (rl *RateLimiter) enforce(c *gin.Context, key string, limit RateLimit) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Requests))

	count, ttl, err := rl.countRedis(c.Request.Context(), key, limit)
	if err != nil {
		if rl.redisClient != nil {
			slog.Debug("Rate limit falling back to local limiter", "key", key, "error", err)
		}
		if !rl.allowLocal(key, limit) {
			rl.reject(c, limit.Window)
			return
		}
		c.Next()
		return
	}

	if count > int64(limit.Requests) {
		rl.reject(c, ttl)
		return
	}

	remaining := int64(limit.Requests) - count
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(ttl).Unix(), 10))

	c.Next()
}

// countRedis increments the fixed-window counter for key and returns the new
// count and the time left in the window
func (rl *RateLimiter) countRedis(ctx context.Context, key string, limit RateLimit) (int64, time.Duration, error) {
	if rl.redisClient == nil {
		return 0, 0, redis.ErrClosed
	}

	count, err := rl.redisClient.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := rl.redisClient.Expire(ctx, key, limit.Window).Err(); err != nil {
			return 0, 0, err
		}
		return count, limit.Window, nil
	}

	ttl, err := rl.redisClient.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = limit.Window
	}
	return count, ttl, nil
}

func (rl *RateLimiter) allowLocal(key string, limit RateLimit) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= localSweepInterval {
		rl.sweepLocal(now)
	}

	bucket, ok := rl.local[key]
	if !ok {
		every := limit.Window / time.Duration(max(limit.Requests, 1))
		bucket = &localBucket{
			limiter: rate.NewLimiter(rate.Every(every), limit.Requests),
			window:  limit.Window,
		}
		rl.local[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// sweepLocal drops idle buckets. The caller holds rl.mu.
func (rl *RateLimiter) sweepLocal(now time.Time) {
	for key, bucket := range rl.local {
		if now.Sub(bucket.lastSeen) >= bucket.window {
			delete(rl.local, key)
		}
	}
	rl.lastSweep = now
}

func (rl *RateLimiter) reject(c *gin.Context, retryAfter time.Duration) {
	c.Header("X-RateLimit-Remaining", "0")
	c.Header("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(retryAfter).Unix(), 10))
	c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))

	c.JSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "RATE_LIMIT_EXCEEDED",
			"message": "Too many requests. Please try again later.",
		},
	})
	c.Abort()
}
