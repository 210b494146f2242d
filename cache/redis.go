package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// RedisStore is a Store backed by Redis string keys.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. Every key is namespaced with prefix.
func NewRedisStore(options RedisOptions, prefix string) *RedisStore {
	addr := options.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: options.Password,
		DB:       options.DB,
	}), prefix)
}

// NewRedisStoreFromClient creates a RedisStore that uses an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{redis: client, prefix: prefix}
}

// DSN describes the Redis server that the store uses.
func (r *RedisStore) DSN() string {
	return fmt.Sprintf("redis://%s", r.redis.Options().Addr)
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := r.redis.Get(ctx, addPrefix(r.prefix, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, fmt.Errorf("invalid cache entry for %q in Redis: %w", key, err)
	}
	return entry, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, addPrefix(r.prefix, key), data, 0).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, addPrefix(r.prefix, key)).Err()
}

func (r *RedisStore) Close() error {
	return r.redis.Close()
}
