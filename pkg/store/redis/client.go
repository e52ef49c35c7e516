package redis

import (
	"context"
	"fmt"
	"regexp"

	"enrollsync/pkg/config"

	"github.com/go-redis/redis/v8"
)

// RedisClient Redis client wrapper
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates Redis client
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient retrieves the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

var memoryHumanRe = regexp.MustCompile(`used_memory_human:(\S+)`)

// MemoryUsage reports the backing store's human-readable memory usage, for
// the operational metrics endpoint.
func (r *RedisClient) MemoryUsage(ctx context.Context) string {
	info, err := r.client.Info(ctx, "memory").Result()
	if err != nil {
		return "unknown"
	}
	m := memoryHumanRe.FindStringSubmatch(info)
	if len(m) < 2 {
		return "unknown"
	}
	return m[1]
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
