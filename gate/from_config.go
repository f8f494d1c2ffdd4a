package gate

import (
	"context"
	"fmt"

	"github.com/ggoodman/authgate-go/config"
	"github.com/ggoodman/authgate-go/identitycache"
	"github.com/ggoodman/authgate-go/idp"
	"github.com/ggoodman/authgate-go/storage"
	"github.com/ggoodman/authgate-go/storage/memory"
	redisstorage "github.com/ggoodman/authgate-go/storage/redis"
	"github.com/redis/go-redis/v9"
)

// NewFromConfig builds the process-wide cache store, identity provider
// client and Gate described by cfg. The store is created once and pooled for
// the life of the Gate; call Close to release it. Options are applied after
// the ones derived from cfg.
func NewFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver, err := idp.New(cfg.IdentityAPIURL,
		idp.WithTimeout(cfg.IdentityAPITimeout),
		idp.WithReferer(cfg.IdentityAPIReferer),
	)
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache := identitycache.New(store,
		identitycache.WithKeyPrefix(cfg.CacheKeyPrefix),
		identitycache.WithTTL(cfg.CacheTTL),
	)

	base := []Option{
		WithRealm(cfg.Realm),
		WithCacheWritePolicy(cfg.CacheWritePolicy),
		WithSingleFlight(cfg.SingleFlight),
	}
	g := New(cache, resolver, append(base, opts...)...)
	g.owned = store
	return g, nil
}

func newStore(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemory:
		return memory.New(cfg.CacheMemoryMaxItems)
	case config.CacheBackendRedis:
		// Cache commands are never retried; a failure is reported at once.
		s, err := redisstorage.NewFromOptions(ctx, &redis.Options{
			Addr:       cfg.RedisAddr(),
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: -1,
		})
		if err != nil {
			return nil, fmt.Errorf("identity cache store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
