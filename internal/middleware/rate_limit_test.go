package middleware

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterFailsOpenWithoutRedis(t *testing.T) {
	// Nothing listens here; every command errors out immediately.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	rl := NewRateLimiter(client, 5, 1)

	// A broken cache must never block connections.
	for i := 0; i < 10; i++ {
		require.True(t, rl.Allow(context.Background(), "203.0.113.7"))
	}
}
