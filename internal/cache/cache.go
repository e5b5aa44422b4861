package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	redisLatency metric.Float64Histogram
)

const (
	// Membership mutations invalidate participant entries explicitly; the TTL
	// is a backstop.
	participantTTL = time.Minute
	// Device tokens are updated outside the relay, so they only converge via
	// expiry.
	deviceTokenTTL = 30 * time.Second
)

type Cache struct {
	client *redis.Client
}

// New creates a new Redis cache connection
func New(dsn string) (*Cache, error) {
	var err error

	// Initialize metrics
	meter := otel.Meter("redis-client")
	redisLatency, err = meter.Float64Histogram("redis.command.latency", metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create redis.command.latency instrument: %w", err)
	}

	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection with tracing
	ctx, span := otel.Tracer("redis-client").Start(context.Background(), "redis.ping")
	defer span.End()
	if err := client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to ping Redis")
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	span.SetStatus(codes.Ok, "Redis connected successfully")

	return &Cache{client: client}, nil
}

// GetClient returns the underlying Redis client (instrumented operations should use Cache methods)
func (c *Cache) GetClient() *redis.Client {
	// Direct access to client bypasses tracing/metrics, use with caution.
	return c.client
}

// Close closes the Redis client
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) observe(ctx context.Context, command string, start time.Time) {
	redisLatency.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("redis.command", command)))
}

// GetParticipantIDs returns the cached active-participant set of a room.
// A miss or any redis fault returns ok=false so the caller falls through to
// the repository.
func (c *Cache) GetParticipantIDs(ctx context.Context, roomID int64) ([]int64, bool) {
	start := time.Now()
	ctx, span := otel.Tracer("redis-client").Start(ctx, "redis.get_participants", trace.WithAttributes(attribute.Int64("room.id", roomID)))
	defer func() {
		c.observe(ctx, "get_participants", start)
		span.End()
	}()

	data, err := c.client.Get(ctx, participantKey(roomID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get participant ids")
		return nil, false
	}
	var ids []int64
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		span.RecordError(err)
		return nil, false
	}
	return ids, true
}

// SetParticipantIDs stores the active-participant set of a room.
func (c *Cache) SetParticipantIDs(ctx context.Context, roomID int64, ids []int64) {
	start := time.Now()
	ctx, span := otel.Tracer("redis-client").Start(ctx, "redis.set_participants", trace.WithAttributes(attribute.Int64("room.id", roomID)))
	defer func() {
		c.observe(ctx, "set_participants", start)
		span.End()
	}()

	data, err := json.Marshal(ids)
	if err != nil {
		span.RecordError(err)
		return
	}
	if err := c.client.Set(ctx, participantKey(roomID), data, participantTTL).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to set participant ids")
	}
}

// InvalidateParticipants drops a room's cached participant set after a
// membership mutation.
func (c *Cache) InvalidateParticipants(ctx context.Context, roomID int64) {
	start := time.Now()
	ctx, span := otel.Tracer("redis-client").Start(ctx, "redis.invalidate_participants", trace.WithAttributes(attribute.Int64("room.id", roomID)))
	defer func() {
		c.observe(ctx, "invalidate_participants", start)
		span.End()
	}()

	if err := c.client.Del(ctx, participantKey(roomID)).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to invalidate participant ids")
	}
}

// GetDeviceTokens returns a user's cached push device tokens.
func (c *Cache) GetDeviceTokens(ctx context.Context, userID, organizationID int64) ([]string, bool) {
	start := time.Now()
	ctx, span := otel.Tracer("redis-client").Start(ctx, "redis.get_device_tokens", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer func() {
		c.observe(ctx, "get_device_tokens", start)
		span.End()
	}()

	data, err := c.client.Get(ctx, deviceTokenKey(userID, organizationID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get device tokens")
		return nil, false
	}
	var tokens []string
	if err := json.Unmarshal([]byte(data), &tokens); err != nil {
		span.RecordError(err)
		return nil, false
	}
	return tokens, true
}

// SetDeviceTokens stores a user's push device tokens.
func (c *Cache) SetDeviceTokens(ctx context.Context, userID, organizationID int64, tokens []string) {
	start := time.Now()
	ctx, span := otel.Tracer("redis-client").Start(ctx, "redis.set_device_tokens", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer func() {
		c.observe(ctx, "set_device_tokens", start)
		span.End()
	}()

	if tokens == nil {
		tokens = []string{}
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		span.RecordError(err)
		return
	}
	if err := c.client.Set(ctx, deviceTokenKey(userID, organizationID), data, deviceTokenTTL).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to set device tokens")
	}
}

func participantKey(roomID int64) string {
	return fmt.Sprintf("room_participants:%d", roomID)
}

func deviceTokenKey(userID, organizationID int64) string {
	return fmt.Sprintf("device_tokens:%d:%d", organizationID, userID)
}
