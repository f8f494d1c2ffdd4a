// Package identitycache stores resolved identities keyed by a digest of the
// bearer token that produced them.
package identitycache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/authgate-go/storage"
)

const (
	// DefaultKeyPrefix is prepended to the token digest to form the store key.
	DefaultKeyPrefix = "auth_user:"
	// DefaultTTL is how long a resolved identity stays cached.
	DefaultTTL = 3600 * time.Second
)

// Cache is a cache-aside view of identities over a storage.Storage.
// It holds no mutable state of its own; the store is the only point of
// serialization between concurrent requests.
type Cache struct {
	store     storage.Storage
	keyPrefix string
	ttl       time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) { c.keyPrefix = prefix }
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New returns a Cache backed by store.
func New(store storage.Storage, opts ...Option) *Cache {
	c := &Cache{store: store, keyPrefix: DefaultKeyPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives the store key for token. MD5 is used only to obtain a
// fixed-width lookup key; it is never part of a security decision.
func (c *Cache) Key(token string) string {
	sum := md5.Sum([]byte(token))
	return c.keyPrefix + hex.EncodeToString(sum[:])
}

// TTL reports the expiry applied by Put.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached identity payload for token. A miss (absent or
// expired) is reported as found == false with a nil error; a non-nil error
// always means the store could not be consulted.
func (c *Cache) Get(ctx context.Context, token string) (json.RawMessage, bool, error) {
	item, err := c.store.Get(ctx, c.Key(token))
	if err != nil {
		return nil, false, fmt.Errorf("identity cache read: %w", err)
	}
	if item == nil {
		return nil, false, nil
	}
	if !json.Valid(item.Data) {
		return nil, false, errors.New("identity cache read: stored payload is not valid JSON")
	}
	return json.RawMessage(item.Data), true, nil
}

// Put stores payload for token with the configured TTL, replacing any
// existing entry.
func (c *Cache) Put(ctx context.Context, token string, payload json.RawMessage) error {
	if err := c.store.Set(ctx, c.Key(token), payload, storage.WithTTL(c.ttl)); err != nil {
		return fmt.Errorf("identity cache write: %w", err)
	}
	return nil
}
