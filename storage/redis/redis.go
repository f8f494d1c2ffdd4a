// Package redis provides a Redis-based implementation of the storage.Storage
// interface. Values are stored as raw bytes with a native Redis expiry, so an
// entry written with WithTTL(time.Hour) is exactly `SET <key> <value> EX 3600`.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/authgate-go/storage"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis storage
type Config struct {
	// Client is the Redis client instance. It is shared across requests and
	// owns the connection pool.
	Client redis.UniversalClient

	// KeyPrefix is prepended to every key. Default: "" (keys are used as-is).
	KeyPrefix string
}

// Storage implements the storage.Storage interface using Redis
type Storage struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ storage.Storage = (*Storage)(nil)

// New creates a new Redis-based storage instance.
func New(config Config) (*Storage, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	return &Storage{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// NewFromOptions builds a pooled client from opts, verifies connectivity with
// PING and wraps it in a Storage. The returned Storage owns the client.
func NewFromOptions(ctx context.Context, opts *redis.Options) (*Storage, error) {
	cl := redis.NewClient(opts)
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(Config{Client: cl})
}

// Get retrieves the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) (*storage.StorageItem, error) {
	redisKey := s.keyPrefix + key

	val, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Key doesn't exist or has expired
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	return &storage.StorageItem{Data: val}, nil
}

// Set stores data under key. Without WithTTL the key does not expire.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options, err := storage.ApplyOptions(opts...)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if options.TTL != nil {
		ttl = *options.TTL
	}

	if err := s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Close closes the storage backend and releases resources
func (s *Storage) Close() error {
	return s.client.Close()
}
