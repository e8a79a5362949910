package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/buffrsign/esign-orchestrator/internal/application/port"
)

const blacklistPrefix = "buffrsign:revoked:"

// RedisBlacklist stores revoked token ids in Redis with a TTL
type RedisBlacklist struct {
	client *redis.Client
	prefix string
}

// NewRedisBlacklist connects to redisURL and verifies the connection
func NewRedisBlacklist(ctx context.Context, redisURL string) (*RedisBlacklist, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBlacklistWithClient(client), nil
}

// NewRedisBlacklistWithClient wraps an existing client
func NewRedisBlacklistWithClient(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client, prefix: blacklistPrefix}
}

// Add marks jti as revoked until ttl elapses
func (b *RedisBlacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := b.client.Set(ctx, b.prefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// Contains reports whether jti is currently revoked
func (b *RedisBlacklist) Contains(ctx context.Context, jti string) (bool, error) {
	err := b.client.Get(ctx, b.prefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup revoked token: %w", err)
	}
	return true, nil
}

// Ping checks if Redis is reachable
func (b *RedisBlacklist) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (b *RedisBlacklist) Close() error {
	return b.client.Close()
}

var _ port.TokenBlacklist = (*RedisBlacklist)(nil)
