package repository

import (
	"context"
	"fmt"
	"time"

	"cubenotary/internal/config"

	"github.com/redis/go-redis/v9"
)

const webhookEventKeyPrefix = "webhook_event:"

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

// RedisDeduper records handled provider event ids with SETNX so that
// concurrent replays across processes are seen exactly once.
type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

// MarkDelivered returns true when eventID was not seen before.
func (r *RedisDeduper) MarkDelivered(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ok, err := r.client.SetNX(ctx, webhookEventKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark event in redis: %w", err)
	}
	return ok, nil
}

// Forget drops the marker so that a delivery that failed downstream can be retried.
func (r *RedisDeduper) Forget(ctx context.Context, eventID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, webhookEventKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to delete event from redis: %w", err)
	}
	return nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
