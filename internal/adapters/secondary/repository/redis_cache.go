package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const scanBatch = 500

// RedisCache stocke des valeurs JSON avec TTL. Purement consultatif.
type RedisCache struct {
	client *redis.Client
}

var _ ports.Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", key, err)
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// DeletePattern parcourt le keyspace avec SCAN (jamais KEYS, non bloquant)
// et supprime par lots dans un pipeline.
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	var (
		cursor  uint64
		matched []string
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		matched = append(matched, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(matched) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for start := 0; start < len(matched); start += scanBatch {
		end := min(start+scanBatch, len(matched))
		pipe.Del(ctx, matched[start:end]...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
