package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/statuswatch/config"
	"github.com/use-agent/statuswatch/models"
	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware.
//
// Entries unused for 1 hour are evicted every 5 minutes until ctx is done.
func RateLimit(ctx context.Context, cfg config.RateLimitConfig) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*limiterEntry)

	getLimiter := func(identity string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		entry, ok := limiters[identity]
		if !ok {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			limiters[identity] = entry
		}
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			cutoff := time.Now().Add(-1 * time.Hour)
			mu.Lock()
			for id, entry := range limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(limiters, id)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity := c.GetString("api_key")
		if identity == "" {
			identity = c.ClientIP()
		}

		if !getLimiter(identity).Allow() {
			c.Header("Retry-After", strconv.Itoa(retryAfter(cfg.RequestsPerSecond)))
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down")
			return
		}

		c.Next()
	}
}

// retryAfter is the whole number of seconds until one token refills.
func retryAfter(rps float64) int {
	if rps <= 0 || rps >= 1 {
		return 1
	}
	return int(1/rps + 0.999)
}
