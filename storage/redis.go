package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient captures the subset of redis.Client used by the store.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

type redisStore struct {
	client RedisClient
	prefix string
}

// NewRedis returns a store keeping each blob at <prefix>:<name>.
func NewRedis(client RedisClient, prefix string) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrNotConfigured)
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) Driver() Driver { return DriverRedis }

func (s *redisStore) key(name string) string {
	return s.prefix + ":" + name
}

func (s *redisStore) Save(ctx context.Context, name string, blob []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(name), blob, 0).Err()
}

func (s *redisStore) Load(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ValidateName(name); err != nil {
		return nil, false, err
	}
	value, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Ping checks the server connection.
func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) Close() error { return nil }
