package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the persistence port with redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis at addr. keyPrefix namespaces all keys.
func NewRedisStore(ctx context.Context, addr, password, keyPrefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: client, prefix: keyPrefix}, nil
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// ListPrefix implements Store, scanning rather than KEYS so a large
// decision log cannot block redis.
func (s *RedisStore) ListPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		v, err := s.client.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[full[len(s.prefix):]] = v
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error { return s.client.Close() }
