// Package storage defines the key-value store the identity cache is layered
// on. Backends live in subpackages: redis for shared deployments and memory
// for single-process use and tests.
package storage

import (
	"context"
	"errors"
	"time"
)

// Storage defines the primary interface for expiring key-value storage.
type Storage interface {
	// Get retrieves data stored under key.
	// Returns nil StorageItem if key doesn't exist or has expired
	// Returns error only for legitimate storage system failures
	Get(ctx context.Context, key string) (*StorageItem, error)

	// Set stores data under key, replacing any previous value.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Close closes the storage backend and releases resources
	Close() error
}

// StorageItem represents a stored piece of data with metadata
type StorageItem struct {
	Data      []byte     // The stored data
	ExpiresAt *time.Time // When the item expires (nil = unknown or no expiration)
}

// IsExpired checks if the item has expired at the given instant.
func (si *StorageItem) IsExpired(now time.Time) bool {
	return si.ExpiresAt != nil && !now.Before(*si.ExpiresAt)
}

// Option configures storage operations
type Option func(*Options)

// Options contains configuration for storage operations
type Options struct {
	TTL *time.Duration // Optional: time-to-live for the data
}

// WithTTL sets a time-to-live for the stored data
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = &ttl
	}
}

// ApplyOptions folds opts into an Options value and validates it.
func ApplyOptions(opts ...Option) (*Options, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.TTL != nil && *options.TTL <= 0 {
		return nil, ErrInvalidOptions
	}
	return options, nil
}

// Error types
var (
	// ErrInvalidOptions is returned when incompatible options are provided
	ErrInvalidOptions = errors.New("storage: invalid option combination")
)
