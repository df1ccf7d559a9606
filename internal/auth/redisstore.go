package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces handshake keys.
const DefaultRedisPrefix = "qp:hs"

// RedisHandshakeStore is a HandshakeStore shared by every service instance through Redis.
// Expiry is delegated to Redis key TTLs.
type RedisHandshakeStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisHandshakeStore creates a store using redisClient.
func NewRedisHandshakeStore(redisClient redis.UniversalClient, prefix string) *RedisHandshakeStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisHandshakeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisHandshakeStore) key(id string) string {
	return s.prefix + ":" + id
}

// Put implements HandshakeStore with SET NX so a live entry is never overwritten.
func (s *RedisHandshakeStore) Put(ctx context.Context, id string, state []byte, ttl time.Duration) error {
	ok, err := s.redis.SetNX(ctx, s.key(id), state, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store handshake state: %w", err)
	}
	if !ok {
		return ErrHandshakeExists
	}
	return nil
}

// Get implements HandshakeStore.
func (s *RedisHandshakeStore) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrHandshakeNotFound
		}
		return nil, fmt.Errorf("failed to load handshake state: %w", err)
	}
	return data, nil
}

// Clear implements HandshakeStore. Only one concurrent caller observes true for an id.
func (s *RedisHandshakeStore) Clear(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to clear handshake state: %w", err)
	}
	return n > 0, nil
}
