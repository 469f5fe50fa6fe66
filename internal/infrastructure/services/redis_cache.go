// ============================================================================
// FILE: internal/infrastructure/services/redis_cache.go
// PURPOSE: Redis-based cache service backing dedup and idempotency keys
// ============================================================================

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xipebhui/autopublish/internal/application/common"
)

// RedisCacheService implements common.CacheService using Redis
type RedisCacheService struct {
	client *redis.Client
	logger common.Logger
}

// NewRedisCacheService creates a new Redis cache service
func NewRedisCacheService(host, port string, db int, logger common.Logger) (*RedisCacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", host, port),
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis cache service initialized successfully")

	return &RedisCacheService{client: client, logger: logger}, nil
}

// Client exposes the underlying connection for middleware that speaks redis
// directly (rate limiting).
func (r *RedisCacheService) Client() *redis.Client { return r.client }

// Close releases the connection pool.
func (r *RedisCacheService) Close() error { return r.client.Close() }

// Get retrieves a value from Redis
func (r *RedisCacheService) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil // Key doesn't exist
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// Set stores a value with a TTL
func (r *RedisCacheService) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes a key
func (r *RedisCacheService) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// Exists checks whether a key is present
func (r *RedisCacheService) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

// SetNX sets the key only when absent; returns true when this call set it.
func (r *RedisCacheService) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}
