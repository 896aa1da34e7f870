package vstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDataStore keeps values in redis under a key prefix. It lets a
// storefront process share one session scope across several workers.
type RedisDataStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	owned   bool
}

var _ DataStore = (*RedisDataStore)(nil)

// NewRedisDataStore wraps an existing client. The caller keeps ownership
// of the client; Close on the store does not close it.
func NewRedisDataStore(client redis.UniversalClient, prefix string) *RedisDataStore {
	return &RedisDataStore{
		client:  client,
		prefix:  prefix,
		timeout: 3 * time.Second,
	}
}

// OpenRedisDataStore connects using a redis:// URL.
func OpenRedisDataStore(url, prefix string) (*RedisDataStore, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s := NewRedisDataStore(redis.NewClient(opt), prefix)
	s.owned = true
	return s, nil
}

// SetTimeout sets the per-operation timeout.
func (s *RedisDataStore) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

func (s *RedisDataStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *RedisDataStore) Get(key string, decrypt bool) ([]byte, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return open(key, decrypt, data)
}

func (s *RedisDataStore) Set(key string, encrypt bool, value []byte) error {
	data, err := seal(key, encrypt, value)
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisDataStore) Delete(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *RedisDataStore) Path() string {
	return fmt.Sprintf("redis %s*", s.prefix)
}

// Close closes the client when the store created it.
func (s *RedisDataStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
