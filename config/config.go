// Package config loads the gate's process configuration from the
// environment. It is resolved once at startup and injected into the gate;
// nothing re-reads the environment per request.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// DotEnvFile is the file Load reads, relative to the working directory,
// before decoding the environment.
const DotEnvFile = ".env"

// CacheBackend selects the identity cache store.
type CacheBackend string

const (
	CacheBackendRedis  CacheBackend = "redis"
	CacheBackendMemory CacheBackend = "memory"
)

// CacheWritePolicy decides what happens when storing a freshly resolved
// identity fails.
type CacheWritePolicy string

const (
	// CacheWriteFail rejects the request with an internal error.
	CacheWriteFail CacheWritePolicy = "fail"
	// CacheWriteIgnore logs the failure and lets the request through with
	// the uncached identity.
	CacheWriteIgnore CacheWritePolicy = "ignore"
)

// Config for the authentication gate. Defaults are provided via struct tags.
type Config struct {
	// IdentityAPIURL is the identity provider base URL. ENV: URL_APPLICATION_API
	IdentityAPIURL string `env:"URL_APPLICATION_API,required"`
	// IdentityAPITimeout bounds a single upstream lookup. ENV: IDENTITY_API_TIMEOUT
	IdentityAPITimeout time.Duration `env:"IDENTITY_API_TIMEOUT,default=10s"`
	// IdentityAPIReferer is sent as the Referer header. ENV: IDENTITY_API_REFERER
	IdentityAPIReferer string `env:"IDENTITY_API_REFERER,default=https://app.3c.plus/"`

	// RedisHost like "localhost". ENV: REDIS_CACHE_HOST
	RedisHost string `env:"REDIS_CACHE_HOST,default=localhost"`
	// RedisPort like 6379. ENV: REDIS_CACHE_PORT
	RedisPort int `env:"REDIS_CACHE_PORT,default=6379"`
	// RedisPassword is optional. ENV: REDIS_CACHE_PASSWORD
	RedisPassword string `env:"REDIS_CACHE_PASSWORD"`
	// RedisDB selects the logical database. ENV: REDIS_CACHE_DB
	RedisDB int `env:"REDIS_CACHE_DB,default=0"`

	// CacheBackend is "redis" or "memory". ENV: AUTH_CACHE_BACKEND
	CacheBackend CacheBackend `env:"AUTH_CACHE_BACKEND,default=redis"`
	// CacheMemoryMaxItems bounds the memory backend. ENV: AUTH_CACHE_MEMORY_MAX_ITEMS
	CacheMemoryMaxItems int `env:"AUTH_CACHE_MEMORY_MAX_ITEMS,default=10000"`
	// CacheTTL is how long resolved identities are cached. ENV: AUTH_CACHE_TTL
	CacheTTL time.Duration `env:"AUTH_CACHE_TTL,default=1h"`
	// CacheKeyPrefix for all identity keys. ENV: AUTH_CACHE_KEY_PREFIX
	CacheKeyPrefix string `env:"AUTH_CACHE_KEY_PREFIX,default=auth_user:"`
	// CacheWritePolicy is "fail" or "ignore". ENV: AUTH_CACHE_WRITE_POLICY
	CacheWritePolicy CacheWritePolicy `env:"AUTH_CACHE_WRITE_POLICY,default=fail"`

	// SingleFlight coalesces concurrent lookups of the same uncached token. ENV: AUTH_SINGLEFLIGHT
	SingleFlight bool `env:"AUTH_SINGLEFLIGHT,default=true"`
	// Realm advertised in WWW-Authenticate challenges. ENV: AUTH_REALM
	Realm string `env:"AUTH_REALM"`

	// ListenAddr is used by the example server. ENV: LISTEN_ADDR
	ListenAddr string `env:"LISTEN_ADDR,default=127.0.0.1:8080"`
}

// Load reads DotEnvFile if present, then builds a Config from the
// environment and validates it.
func Load() (Config, error) {
	if err := LoadDotEnv(DotEnvFile); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv copies variables from the given dotenv files into the process
// environment. Variables that are already set keep their value. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

// RedisAddr joins host and port.
func (c Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// Validate returns an error if required invariants are not met.
func (c Config) Validate() error {
	if c.IdentityAPIURL == "" {
		return errors.New("config: identity provider base URL required")
	}
	u, err := url.Parse(c.IdentityAPIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: identity provider base URL must be absolute http(s), got %q", c.IdentityAPIURL)
	}
	if c.IdentityAPITimeout <= 0 {
		return errors.New("config: identity provider timeout must be positive")
	}
	if c.CacheTTL <= 0 {
		return errors.New("config: cache TTL must be positive")
	}

	switch c.CacheBackend {
	case CacheBackendRedis:
		if c.RedisHost == "" {
			return errors.New("config: redis host required")
		}
		if c.RedisPort <= 0 || c.RedisPort > 65535 {
			return fmt.Errorf("config: invalid redis port %d", c.RedisPort)
		}
	case CacheBackendMemory:
		if c.CacheMemoryMaxItems <= 0 {
			return errors.New("config: memory cache size must be positive")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.CacheBackend)
	}

	switch c.CacheWritePolicy {
	case CacheWriteFail, CacheWriteIgnore:
	default:
		return fmt.Errorf("config: unknown cache write policy %q", c.CacheWritePolicy)
	}
	return nil
}
