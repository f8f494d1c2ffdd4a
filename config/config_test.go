package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("URL_APPLICATION_API", "https://api.3c.plus")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.RedisAddr() != "localhost:6379" {
		t.Errorf("RedisAddr() = %q", cfg.RedisAddr())
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if cfg.IdentityAPITimeout != 10*time.Second {
		t.Errorf("IdentityAPITimeout = %v, want 10s", cfg.IdentityAPITimeout)
	}
	if cfg.CacheKeyPrefix != "auth_user:" {
		t.Errorf("CacheKeyPrefix = %q", cfg.CacheKeyPrefix)
	}
	if cfg.CacheBackend != CacheBackendRedis || cfg.CacheWritePolicy != CacheWriteFail || !cfg.SingleFlight {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.IdentityAPIReferer != "https://app.3c.plus/" {
		t.Errorf("IdentityAPIReferer = %q", cfg.IdentityAPIReferer)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("URL_APPLICATION_API", "http://idp.internal:8000/api")
	t.Setenv("REDIS_CACHE_HOST", "cache.internal")
	t.Setenv("REDIS_CACHE_PORT", "6380")
	t.Setenv("AUTH_CACHE_TTL", "15m")
	t.Setenv("AUTH_CACHE_WRITE_POLICY", "ignore")
	t.Setenv("AUTH_SINGLEFLIGHT", "false")
	t.Setenv("IDENTITY_API_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisAddr() != "cache.internal:6380" {
		t.Errorf("RedisAddr() = %q", cfg.RedisAddr())
	}
	if cfg.CacheTTL != 15*time.Minute || cfg.IdentityAPITimeout != 3*time.Second {
		t.Errorf("durations = %v, %v", cfg.CacheTTL, cfg.IdentityAPITimeout)
	}
	if cfg.CacheWritePolicy != CacheWriteIgnore || cfg.SingleFlight {
		t.Errorf("unexpected policy values: %+v", cfg)
	}
}

func TestLoadRequiresBaseURL(t *testing.T) {
	t.Setenv("URL_APPLICATION_API", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "URL_APPLICATION_API") {
		t.Fatalf("Load() err = %v, want missing URL_APPLICATION_API", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			IdentityAPIURL:      "https://api.3c.plus",
			IdentityAPITimeout:  time.Second,
			RedisHost:           "localhost",
			RedisPort:           6379,
			CacheBackend:        CacheBackendRedis,
			CacheMemoryMaxItems: 10,
			CacheTTL:            time.Hour,
			CacheWritePolicy:    CacheWriteFail,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "memory backend", mutate: func(c *Config) { c.CacheBackend = CacheBackendMemory; c.RedisHost = "" }},
		{name: "missing url", mutate: func(c *Config) { c.IdentityAPIURL = "" }, wantErr: "base URL required"},
		{name: "relative url", mutate: func(c *Config) { c.IdentityAPIURL = "api.3c.plus" }, wantErr: "absolute"},
		{name: "zero timeout", mutate: func(c *Config) { c.IdentityAPITimeout = 0 }, wantErr: "timeout"},
		{name: "zero ttl", mutate: func(c *Config) { c.CacheTTL = 0 }, wantErr: "TTL"},
		{name: "bad port", mutate: func(c *Config) { c.RedisPort = 70000 }, wantErr: "port"},
		{name: "unknown backend", mutate: func(c *Config) { c.CacheBackend = "memcached" }, wantErr: "backend"},
		{name: "unknown policy", mutate: func(c *Config) { c.CacheWritePolicy = "retry" }, wantErr: "policy"},
		{name: "empty memory cache", mutate: func(c *Config) { c.CacheBackend = CacheBackendMemory; c.CacheMemoryMaxItems = 0 }, wantErr: "size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

// unsetForTest clears key for the duration of the test and restores it
// afterwards, so values loaded from a dotenv file do not leak.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

// chdirForTest changes the working directory for the duration of the test
// and restores it afterwards (equivalent of testing.T.Chdir, added in Go 1.24).
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	contents := "URL_APPLICATION_API=https://idp.from-file\nREDIS_CACHE_HOST=redis.from-file\nREDIS_CACHE_PORT=6390\n"
	if err := os.WriteFile(filepath.Join(dir, DotEnvFile), []byte(contents), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdirForTest(t, dir)

	unsetForTest(t, "URL_APPLICATION_API")
	unsetForTest(t, "REDIS_CACHE_PORT")
	t.Setenv("REDIS_CACHE_HOST", "redis.from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IdentityAPIURL != "https://idp.from-file" {
		t.Errorf("IdentityAPIURL = %q, want value from .env", cfg.IdentityAPIURL)
	}
	if cfg.RedisAddr() != "redis.from-env:6390" {
		t.Errorf("RedisAddr() = %q, want environment to win over .env", cfg.RedisAddr())
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is skipped", func(t *testing.T) {
		if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
			t.Fatalf("LoadDotEnv: %v", err)
		}
	})

	t.Run("unreadable path fails", func(t *testing.T) {
		// A directory exists but cannot be parsed as a dotenv file.
		if err := LoadDotEnv(t.TempDir()); err == nil {
			t.Fatal("expected error for a directory")
		}
	})
}
