package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter implements a token bucket rate limiting mechanism using Redis.
// The relay applies it per client IP on new socket connections.
type RateLimiter struct {
	redisClient *redis.Client
	// Token bucket parameters
	capacity int64   // Maximum number of tokens the bucket can hold
	rate     float64 // Tokens added per second
}

// NewRateLimiter creates a new RateLimiter instance.
func NewRateLimiter(redisClient *redis.Client, capacity int, ratePerSec int) *RateLimiter {
	return &RateLimiter{
		redisClient: redisClient,
		capacity:    int64(capacity),
		rate:        float64(ratePerSec),
	}
}

// Allow checks if a new connection is allowed for a given client IP.
// Redis faults fail open: a broken cache must not take the relay down.
func (rl *RateLimiter) Allow(ctx context.Context, clientIP string) bool {
	key := fmt.Sprintf("conn_rate_limit:%s", clientIP)

	val, err := rl.redisClient.HMGet(ctx, key, "tokens", "last_refill").Result()
	if err != nil {
		return true
	}

	currentTokens := rl.capacity
	lastRefillTime := time.Now()

	if val[0] != nil && val[1] != nil {
		if t, err := strconv.ParseFloat(val[0].(string), 64); err == nil {
			currentTokens = int64(t)
		}
		if t, err := time.Parse(time.RFC3339Nano, val[1].(string)); err == nil {
			lastRefillTime = t
		}
	}

	// Refill tokens
	now := time.Now()
	diff := now.Sub(lastRefillTime).Seconds()
	tokensToAdd := int64(diff * rl.rate)
	currentTokens = int64(math.Min(float64(rl.capacity), float64(currentTokens+tokensToAdd)))
	lastRefillTime = now

	// Consume token
	if currentTokens >= 1 {
		currentTokens--
		_, err = rl.redisClient.HMSet(ctx, key, "tokens", currentTokens, "last_refill", lastRefillTime.Format(time.RFC3339Nano)).Result()
		if err != nil {
			return true // Allow connection even if Redis update fails
		}
		return true
	}

	return false
}
