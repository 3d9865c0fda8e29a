package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const defaultRedisPrefix = "progress:snapshot:"

// RedisRemote keeps each user's snapshot in a plain string key.
type RedisRemote struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRemote constructs a Remote over a redis client.
func NewRedisRemote(client redis.Cmdable) *RedisRemote {
	return &RedisRemote{client: client, prefix: defaultRedisPrefix}
}

func (r *RedisRemote) key(userID string) string {
	return r.prefix + userID
}

// Fetch implements Remote.
func (r *RedisRemote) Fetch(ctx context.Context, userID string) (payload []byte, err error) {
	ctx, span := tracer.Start(ctx, "redis.fetch")
	span.SetAttributes(attribute.String("user", userID))
	defer func(start time.Time) {
		observe("redis", "fetch", start, err)
		endSpan(span, err)
	}(time.Now())

	payload, err = r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return payload, err
}

// Upsert implements Remote.
func (r *RedisRemote) Upsert(ctx context.Context, userID string, payload []byte) (err error) {
	ctx, span := tracer.Start(ctx, "redis.upsert")
	span.SetAttributes(attribute.String("user", userID), attribute.Int("bytes", len(payload)))
	defer func(start time.Time) {
		observe("redis", "upsert", start, err)
		endSpan(span, err)
	}(time.Now())

	return r.client.Set(ctx, r.key(userID), payload, 0).Err()
}
