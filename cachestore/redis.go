package cachestore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/idresolve/errors"
)

// RedisConfig holds Redis-specific configuration for the shared cache.
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string `json:"addr" yaml:"addr"`
	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`
	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`
	// Prefix namespaces all cache keys (default "idresolve:")
	Prefix string `json:"prefix" yaml:"prefix"`
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "idresolve:",
	}
}

// RedisStore is a Redis-backed Store. Values are the JSON Entry
// representation so external processes can inspect the table directly.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisConfig().Prefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
			"RedisStore", "NewRedisStore", "redis ping")
	}

	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests).
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisConfig().Prefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Get retrieves an entry by key.
func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	if err := key.Validate(); err != nil {
		return Entry{}, false, err
	}

	raw, err := s.client.Get(ctx, s.prefix+key.String()).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
			"RedisStore", "Get", "redis get")
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value behaves like a miss so the executor refreshes it.
		return Entry{}, false, nil
	}
	if entry.Expired(time.Now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put stores an entry with the given TTL. The later-expiry write wins:
// the swap runs under WATCH so a racing shorter-lived write cannot
// clobber a longer-lived entry.
func (s *RedisStore) Put(ctx context.Context, key Key, entry Entry, ttl time.Duration) error {
	if err := key.Validate(); err != nil {
		return err
	}
	entry.ExpiresAt = time.Now().Add(ttl)
	if entry.ResolvedAt.IsZero() {
		entry.ResolvedAt = time.Now()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.WrapInvalid(err, "RedisStore", "Put", "entry marshal")
	}

	fullKey := s.prefix + key.String()
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, getErr := tx.Get(ctx, fullKey).Bytes()
		if getErr != nil && !stderrors.Is(getErr, redis.Nil) {
			return getErr
		}
		if getErr == nil {
			var current Entry
			if json.Unmarshal(existing, &current) == nil && current.ExpiresAt.After(entry.ExpiresAt) {
				return nil // existing entry outlives the new one
			}
		}
		_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, raw, ttl)
			return nil
		})
		return pipeErr
	}, fullKey)
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
			"RedisStore", "Put", "redis set")
	}
	return nil
}

// Invalidate removes an entry by key.
func (s *RedisStore) Invalidate(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.prefix+key.String()).Err(); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
			"RedisStore", "Invalidate", "redis del")
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
