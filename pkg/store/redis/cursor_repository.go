package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"enrollsync/internal/model"

	"github.com/go-redis/redis/v8"
)

const cursorKey = "enrollment_sync_cursor"

// CursorRepository persists the reconciliation sync cursor in Redis. The
// cursor is stored with a bounded TTL so a permanently stuck watermark
// self-heals by falling back to the default lookback window.
type CursorRepository struct {
	redis    *redis.Client
	ttl      time.Duration
	lookback time.Duration
}

// NewCursorRepository creates the cursor repository.
func NewCursorRepository(redisClient *RedisClient, ttl, lookback time.Duration) *CursorRepository {
	return &CursorRepository{
		redis:    redisClient.GetClient(),
		ttl:      ttl,
		lookback: lookback,
	}
}

// Load returns the persisted cursor, or the default lookback cursor when
// none exists or the stored value has expired.
func (r *CursorRepository) Load(ctx context.Context) (model.SyncCursor, error) {
	data, err := r.redis.Get(ctx, cursorKey).Result()
	if err == redis.Nil {
		return model.DefaultSyncCursor(r.lookback), nil
	}
	if err != nil {
		return model.SyncCursor{}, fmt.Errorf("failed to load sync cursor: %w", err)
	}

	var cursor model.SyncCursor
	if err := json.Unmarshal([]byte(data), &cursor); err != nil {
		// Malformed cursor is treated as absent rather than blocking sync
		return model.DefaultSyncCursor(r.lookback), nil
	}
	return cursor, nil
}

// Save persists the cursor with the configured TTL.
func (r *CursorRepository) Save(ctx context.Context, cursor model.SyncCursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("failed to marshal sync cursor: %w", err)
	}
	if err := r.redis.Set(ctx, cursorKey, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save sync cursor: %w", err)
	}
	return nil
}
