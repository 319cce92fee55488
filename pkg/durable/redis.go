package durable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a StepStore backed by Redis hashes, one hash per chain.
// Hashes expire after TTL so abandoned chains do not accumulate.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

const defaultStepTTL = 7 * 24 * time.Hour

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    defaultStepTTL,
	}
}

func (s *RedisStore) key(chainID string) string {
	return "loom:steps:" + chainID
}

func (s *RedisStore) Get(ctx context.Context, chainID, label string) ([]byte, bool, error) {
	value, err := s.client.HGet(ctx, s.key(chainID), label).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("redis step get: %w", err)
	}

	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, chainID, label string, value []byte) error {
	key := s.key(chainID)

	if err := s.client.HSet(ctx, key, label, value).Err(); err != nil {
		return fmt.Errorf("redis step set: %w", err)
	}

	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis step expire: %w", err)
	}

	return nil
}

func (s *RedisStore) Clear(ctx context.Context, chainID string) error {
	if err := s.client.Del(ctx, s.key(chainID)).Err(); err != nil {
		return fmt.Errorf("redis step clear: %w", err)
	}

	return nil
}
