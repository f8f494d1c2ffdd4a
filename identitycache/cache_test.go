package identitycache

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ggoodman/authgate-go/storage"
	"github.com/ggoodman/authgate-go/storage/memory"
	redisstorage "github.com/ggoodman/authgate-go/storage/redis"
	"github.com/redis/go-redis/v9"
)

var keyPattern = regexp.MustCompile(`^auth_user:[0-9a-f]{32}$`)

func newMemoryCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	s, err := memory.New(100)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return New(s, opts...)
}

func TestKey(t *testing.T) {
	c := newMemoryCache(t)

	// md5("abc123")
	if got, want := c.Key("abc123"), "auth_user:e99a18c428cb38d5f260853678922e03"; got != want {
		t.Errorf("Key(abc123) = %q, want %q", got, want)
	}

	seen := make(map[string]string)
	for _, tok := range []string{"a", "b", "abc123", "abc124", "Bearer abc123", " abc123", "ABC123", "x/y+z=="} {
		k1, k2 := c.Key(tok), c.Key(tok)
		if k1 != k2 {
			t.Errorf("Key(%q) not deterministic: %q vs %q", tok, k1, k2)
		}
		if !keyPattern.MatchString(k1) {
			t.Errorf("Key(%q) = %q, not fixed-width", tok, k1)
		}
		if prev, dup := seen[k1]; dup {
			t.Errorf("Key collision between %q and %q", prev, tok)
		}
		seen[k1] = tok
	}
}

func TestKeyPrefixOption(t *testing.T) {
	c := newMemoryCache(t, WithKeyPrefix("svc:"))
	if got := c.Key("abc123"); got != "svc:e99a18c428cb38d5f260853678922e03" {
		t.Errorf("Key = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()
	payload := []byte(`{"id":1,"name":"Alice","teams":[{"instances":[]}]}`)

	if _, found, err := c.Get(ctx, "abc123"); err != nil || found {
		t.Fatalf("Get on empty cache = found %v, err %v", found, err)
	}

	if err := c.Put(ctx, "abc123", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, "abc123", payload); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, found, err := c.Get(ctx, "abc123")
	if err != nil || !found {
		t.Fatalf("Get = found %v, err %v", found, err)
	}
	if string(got) != string(payload) {
		t.Errorf("Get = %s, want %s", got, payload)
	}

	if _, found, _ := c.Get(ctx, "other"); found {
		t.Error("unexpected hit for a different token")
	}
}

func TestPutUsesTTLOnRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	s, err := redisstorage.New(redisstorage.Config{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})})
	if err != nil {
		t.Fatalf("redis storage: %v", err)
	}
	defer s.Close()

	c := New(s)
	if c.TTL() != time.Hour {
		t.Fatalf("TTL() = %v, want 1h", c.TTL())
	}
	if err := c.Put(context.Background(), "abc123", []byte(`{"id":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	key := c.Key("abc123")
	if ttl := mr.TTL(key); ttl != 3600*time.Second {
		t.Errorf("TTL(%s) = %v, want 3600s", key, ttl)
	}

	mr.FastForward(3601 * time.Second)
	if _, found, err := c.Get(context.Background(), "abc123"); err != nil || found {
		t.Errorf("Get after expiry = found %v, err %v", found, err)
	}
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (*storage.StorageItem, error) { return nil, f.err }
func (f failingStore) Set(context.Context, string, []byte, ...storage.Option) error {
	return f.err
}
func (f failingStore) Close() error { return nil }

func TestStoreFailuresAreErrors(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	c := New(failingStore{err: boom})

	if _, found, err := c.Get(context.Background(), "t"); !errors.Is(err, boom) || found {
		t.Errorf("Get = found %v, err %v; want wrapped store error", found, err)
	}
	if err := c.Put(context.Background(), "t", []byte(`{}`)); !errors.Is(err, boom) {
		t.Errorf("Put err = %v; want wrapped store error", err)
	}
}

func TestCorruptEntryIsAnError(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	if err := c.store.Set(ctx, c.Key("t"), []byte("not json")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, _, err := c.Get(ctx, "t"); err == nil {
		t.Error("expected error for corrupt cache entry")
	}
}
