// Package redis caches normalized judgments so re-running an assessment
// over an unchanged evidence corpus skips the judgment provider.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/medaccred/backend/internal/judge"
	"github.com/medaccred/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) GetJudgment(ctx context.Context, key string, out *judge.Judgment) (bool, error) {
	data, err := c.client.Get(ctx, "judgment:"+key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cached judgment: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached judgment: %w", err)
	}

	logger.Debug("Judgment cache hit", zap.String("key", key))
	return true, nil
}

func (c *Client) SetJudgment(ctx context.Context, key string, j judge.Judgment) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal judgment: %w", err)
	}

	if err := c.client.Set(ctx, "judgment:"+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache judgment: %w", err)
	}

	logger.Debug("Judgment cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

// InvalidateAll drops all cached judgments. Called when a project's
// evidence corpus changes, since the cache key covers only the narrowed
// per-element corpus.
func (c *Client) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "judgment:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Judgment cache invalidated")
	return nil
}
