// Package memory provides an in-memory implementation of the storage interface
// using github.com/hashicorp/golang-lru/v2 for bounded caching with TTL support.
// It is process-local: entries are not shared between replicas.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/authgate-go/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCleanupInterval = 5 * time.Minute

// Storage implements the storage.Storage interface using in-memory storage
type Storage struct {
	// mu serializes compound operations on cache so an expired-entry
	// removal never drops a value written concurrently.
	mu    sync.Mutex
	cache *lru.Cache[string, *storage.StorageItem]
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

var _ storage.Storage = (*Storage)(nil)

// Option configures a memory Storage.
type Option func(*Storage)

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// New creates a new in-memory storage holding at most maxItems entries.
// The least recently used entry is evicted when the limit is reached.
func New(maxItems int, opts ...Option) (*Storage, error) {
	cache, err := lru.New[string, *storage.StorageItem](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Storage{
		cache: cache,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Start background cleanup of expired items
	go s.cleanupExpired(defaultCleanupInterval)

	return s, nil
}

// Get retrieves data stored under key.
func (s *Storage) Get(ctx context.Context, key string) (*storage.StorageItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.cache.Get(key)
	if !exists {
		return nil, nil
	}

	if item.IsExpired(s.now()) {
		s.cache.Remove(key)
		return nil, nil
	}

	return &storage.StorageItem{
		Data:      append([]byte(nil), item.Data...),
		ExpiresAt: item.ExpiresAt,
	}, nil
}

// Set stores data under key, replacing any previous value.
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options, err := storage.ApplyOptions(opts...)
	if err != nil {
		return err
	}

	item := &storage.StorageItem{
		Data: append([]byte(nil), data...),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if options.TTL != nil {
		expiresAt := s.now().Add(*options.TTL)
		item.ExpiresAt = &expiresAt
	}

	s.cache.Add(key, item)

	return nil
}

// Len reports the number of entries currently held, including expired
// entries the janitor has not yet removed.
func (s *Storage) Len() int {
	return s.cache.Len()
}

// Close stops the janitor and drops all entries.
func (s *Storage) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.cache.Purge()
	return nil
}

// removeExpired drops every entry whose TTL has elapsed.
func (s *Storage) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, key := range s.cache.Keys() {
		if item, exists := s.cache.Peek(key); exists && item.IsExpired(now) {
			s.cache.Remove(key)
		}
	}
}

// cleanupExpired periodically removes expired items until Close is called.
func (s *Storage) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stop:
			return
		}
	}
}
