package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"farematrix/internal/models"
)

// RedisStatusStore stores run progress in Redis.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStatusStore initializes a Redis-backed StatusStore.
func NewRedisStatusStore(addr, prefix string, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Close closes the Redis client.
func (s *RedisStatusStore) Close() error {
	return s.client.Close()
}

// SetStatus writes the progress record to Redis.
func (s *RedisStatusStore) SetStatus(ctx context.Context, status models.ProgressMeta) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	key := s.prefix + status.SessionID
	return s.client.Set(ctx, key, payload, s.ttl).Err()
}

// GetStatus reads the progress record from Redis.
func (s *RedisStatusStore) GetStatus(ctx context.Context, sessionID string) (models.ProgressMeta, bool, error) {
	key := s.prefix + sessionID
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ProgressMeta{}, false, nil
		}
		return models.ProgressMeta{}, false, err
	}

	var status models.ProgressMeta
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return models.ProgressMeta{}, false, err
	}
	return status, true, nil
}
