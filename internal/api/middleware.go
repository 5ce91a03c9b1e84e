// Package api implements the read-mostly HTTP API that exposes the mirrored
// world state, recorded history and Prometheus metrics.
package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// bucketIdleTTL is how long an unused bucket is kept before it is swept.
const bucketIdleTTL = 5 * time.Minute

// Route classes share a bucket per client. Polling the world does not
// drain the budget for history or config calls.
const (
	routeClassPublic  = "public"
	routeClassWorld   = "world"
	routeClassHistory = "history"
	routeClassConfig  = "config"
	routeClassOther   = "other"
)

// RateLimiter is a token bucket per client IP and route class.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[bucketKey]*clientBucket
	rate      int
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type bucketKey struct {
	ip    string
	class string
}

type clientBucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewRateLimiter creates a rate limiter refilling rps tokens per second
// with a burst of twice that.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[bucketKey]*clientBucket),
		rate:    rps,
		burst:   rps * 2,
		now:     time.Now,
	}
}

// routeCost classifies a matched route and returns the tokens it spends.
// History reads hit SQLite and config writes rewrite the config file, so
// they cost more. The metrics scrape is never limited.
func routeCost(method, route string) (string, float64, bool) {
	switch {
	case route == "/metrics":
		return "", 0, false
	case strings.HasPrefix(route, "/api/public"):
		return routeClassPublic, 1, true
	case strings.HasPrefix(route, "/api/world"), route == "/api/status":
		return routeClassWorld, 1, true
	case strings.HasPrefix(route, "/api/history"):
		return routeClassHistory, 2, true
	case strings.HasPrefix(route, "/api/config"):
		if method == http.MethodGet {
			return routeClassConfig, 1, true
		}
		return routeClassConfig, 2, true
	default:
		return routeClassOther, 1, true
	}
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// allow spends cost tokens from the bucket for key. When the bucket is
// short it returns the wait until enough tokens refill.
func (rl *RateLimiter) allow(key bucketKey, cost float64) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = &clientBucket{tokens: float64(rl.burst), lastCheck: now}
		rl.buckets[key] = bucket
	}

	elapsed := now.Sub(bucket.lastCheck).Seconds()
	bucket.tokens = min(bucket.tokens+elapsed*float64(rl.rate), float64(rl.burst))
	bucket.lastCheck = now

	if bucket.tokens < cost {
		missing := cost - bucket.tokens
		return false, time.Duration(missing / float64(rl.rate) * float64(time.Second))
	}
	bucket.tokens -= cost
	return true, 0
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < bucketIdleTTL {
		return
	}
	rl.lastSweep = now
	for key, b := range rl.buckets {
		if now.Sub(b.lastCheck) > bucketIdleTTL {
			delete(rl.buckets, key)
		}
	}
}

// Middleware returns a Gin middleware that limits each client per route
// class and sets Retry-After on rejection.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 {
			c.Next()
			return
		}

		class, cost, limited := routeCost(c.Request.Method, c.FullPath())
		if !limited {
			c.Next()
			return
		}

		ok, wait := rl.allow(bucketKey{ip: c.ClientIP(), class: class}, cost)
		if !ok {
			seconds := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"class": class,
			})
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security-related HTTP headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Server", "flailbot")

		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Header("X-Frame-Options", "DENY")
			c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}

		c.Next()
	}
}

// RequestLogger logs incoming HTTP requests.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("api request")
	}
}
