package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

var timeNow = time.Now

// RedisStore is a Store backed by Redis. Entries are written without TTL.
type RedisStore[T any] struct {
	redis     redis.UniversalClient
	namespace string
}

// NewRedisStore creates a RedisStore writing keys under namespace.
func NewRedisStore[T any](redisClient redis.UniversalClient, namespace string) *RedisStore[T] {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore[T]{
		redis:     redisClient,
		namespace: namespace,
	}
}

func (s *RedisStore[T]) key(scope string) string {
	return Key{Namespace: s.namespace, Scope: scope}.String()
}

// Get implements Store.
func (s *RedisStore[T]) Get(ctx context.Context, scope string) ([]T, bool, error) {
	data, err := s.redis.Get(ctx, s.key(scope)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.WithLabelValues(BackendRedis).Inc()
			return nil, false, nil
		}
		CacheErrors.WithLabelValues(BackendRedis, "get").Inc()
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(BackendRedis, "get").Inc()
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues(BackendRedis).Inc()
	if entry.Items == nil {
		entry.Items = []T{}
	}
	return entry.Items, true, nil
}

// Set implements Store.
func (s *RedisStore[T]) Set(ctx context.Context, scope string, items []T) error {
	data, err := json.Marshal(Entry[T]{Items: items, CachedAt: timeNow()})
	if err != nil {
		CacheErrors.WithLabelValues(BackendRedis, "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(scope), data, 0).Err(); err != nil {
		CacheErrors.WithLabelValues(BackendRedis, "set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete implements Store.
func (s *RedisStore[T]) Delete(ctx context.Context, scope string) error {
	if err := s.redis.Del(ctx, s.key(scope)).Err(); err != nil {
		CacheErrors.WithLabelValues(BackendRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Clear implements Store. It deletes every key in the store's namespace.
func (s *RedisStore[T]) Clear(ctx context.Context) error {
	iter := s.redis.Scan(ctx, 0, Pattern(s.namespace), 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues(BackendRedis, "clear").Inc()
		return fmt.Errorf("redis scan: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		CacheErrors.WithLabelValues(BackendRedis, "clear").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
