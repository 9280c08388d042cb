package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore keeps each tab's checkpoint in one hash whose TTL is
// refreshed on every write.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{
		client: client,
		ttl:    ttl,
	}
}

func (c *redisSessionStore) key(tabID string) string {
	return "session:" + tabID
}

func (c *redisSessionStore) Get(ctx context.Context, tabID, key string) (string, bool, error) {
	v, err := c.client.HGet(ctx, c.key(tabID), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *redisSessionStore) Set(ctx context.Context, tabID, key, value string) error {
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.key(tabID), key, value)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key(tabID), c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *redisSessionStore) Delete(ctx context.Context, tabID, key string) error {
	return c.client.HDel(ctx, c.key(tabID), key).Err()
}

func (c *redisSessionStore) Clear(ctx context.Context, tabID string) error {
	return c.client.Del(ctx, c.key(tabID)).Err()
}
