package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "slack_relay:event:"

type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisDeduper struct {
	client setNXer
	ttl    time.Duration
}

// NewRedisDeduper claims keys with SET NX and a TTL. Slack stops retrying an
// event after about an hour, so the default TTL covers every redelivery.
func NewRedisDeduper(client setNXer, ttl time.Duration) EventDeduper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisDeduper{client: client, ttl: ttl}
}

func (d *redisDeduper) Claim(ctx context.Context, key string) error {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return fmt.Errorf("claiming event %s: %w", key, err)
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

// Release drops a claim so a redelivery of the same event is accepted again.
func (d *redisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, dedupKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("releasing event %s: %w", key, err)
	}
	return nil
}
