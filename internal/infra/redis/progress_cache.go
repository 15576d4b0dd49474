package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"mayagen/internal/domain"
	"mayagen/internal/usecase"
)

// ProgressCache keeps the latest batch progress snapshot hot so poll
// handlers do not hit Postgres on every request. The job store stays the
// source of truth; a cache miss just falls through to a recount.
type ProgressCache struct {
	client RedisClient
	ttl    time.Duration
}

var _ usecase.ProgressCache = (*ProgressCache)(nil)

func NewProgressCache(client RedisClient, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProgressCache{client: client, ttl: ttl}
}

func (c *ProgressCache) Store(ctx context.Context, p usecase.BatchProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "batch_progress:"+p.BatchID, data, c.ttl)
}

func (c *ProgressCache) Get(ctx context.Context, batchID string) (usecase.BatchProgress, error) {
	data, err := c.client.Get(ctx, "batch_progress:"+batchID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return usecase.BatchProgress{}, domain.ErrNotFound
		}
		return usecase.BatchProgress{}, err
	}
	var p usecase.BatchProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return usecase.BatchProgress{}, err
	}
	return p, nil
}

func (c *ProgressCache) Delete(ctx context.Context, batchID string) error {
	return c.client.Del(ctx, "batch_progress:"+batchID)
}
