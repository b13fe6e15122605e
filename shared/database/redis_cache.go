package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"foundry/shared/interfaces"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check
var _ interfaces.Cache = (*redisCache)(nil)

type redisCache struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisCache создает кэш публичных выборок поверх Redis. Все ключи
// хранятся с префиксом keyPrefix.
func NewRedisCache(client *redis.Client, keyPrefix string, logger *zap.Logger) interfaces.Cache {
	return &redisCache{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.Named("RedisCache"),
	}
}

func (c *redisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	fullKey := c.keyPrefix + key
	data, err := c.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		c.logger.Warn("Failed to get value from redis", zap.String("key", fullKey), zap.Error(err))
		return false, fmt.Errorf("failed to get cache key %s: %w", fullKey, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// Битое значение просто считаем промахом.
		c.logger.Warn("Corrupted cache value, ignoring", zap.String("key", fullKey), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (c *redisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	fullKey := c.keyPrefix + key
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value %s: %w", fullKey, err)
	}
	if err := c.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		c.logger.Warn("Failed to set value in redis", zap.String("key", fullKey), zap.Error(err))
		return fmt.Errorf("failed to set cache key %s: %w", fullKey, err)
	}
	return nil
}

func (c *redisCache) DeletePrefix(ctx context.Context, prefix string) error {
	pattern := c.keyPrefix + prefix + "*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	pipe := c.client.Pipeline()
	queued := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		queued++
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys %s: %w", pattern, err)
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("Failed to delete cache keys", zap.String("pattern", pattern), zap.Error(err))
		return fmt.Errorf("failed to delete cache keys %s: %w", pattern, err)
	}
	c.logger.Debug("Cache keys invalidated", zap.String("pattern", pattern), zap.Int("count", queued))
	return nil
}
