package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"travel-backoffice/config"
)

const dedupeKeyPrefix = "payment_webhook:"

// NewRedisClient creates a Redis client from the configuration, or nil when Redis is disabled.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// Deduper suppresses replays of the same webhook delivery across instances.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{client: client, ttl: ttl}
}

// Claim returns true for the first caller presenting eventID within the TTL.
func (d *Deduper) Claim(ctx context.Context, eventID string) (bool, error) {
	if d == nil || d.client == nil {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, dedupeKeyPrefix+eventID, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("failed to claim webhook in redis: %w", err)
	}
	return ok, nil
}

// Release drops a claim so a provider retry is processed again.
func (d *Deduper) Release(ctx context.Context, eventID string) error {
	if d == nil || d.client == nil {
		return nil
	}
	if err := d.client.Del(ctx, dedupeKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release webhook claim: %w", err)
	}
	return nil
}
