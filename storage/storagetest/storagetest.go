// Package storagetest provides a conformance suite for storage.Storage
// implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/authgate-go/storage"
)

// Harness is a Storage under test plus a way to move its notion of time forward.
type Harness struct {
	Storage storage.Storage
	// Advance moves the backend's clock forward by d.
	Advance func(d time.Duration)
}

// HarnessFactory creates a fresh, empty Harness for each subtest.
type HarnessFactory func(t *testing.T) Harness

// RunStorageTests runs the complete Storage test suite against the provided factory.
func RunStorageTests(t *testing.T, factory HarnessFactory) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, factory) })
	t.Run("GetNonExistent", func(t *testing.T) { testGetNonExistent(t, factory) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("IdempotentSet", func(t *testing.T) { testIdempotentSet(t, factory) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, factory) })
	t.Run("NoTTLDoesNotExpire", func(t *testing.T) { testNoTTL(t, factory) })
	t.Run("InvalidTTL", func(t *testing.T) { testInvalidTTL(t, factory) })
	t.Run("KeyIsolation", func(t *testing.T) { testKeyIsolation(t, factory) })
	t.Run("ConcurrentWriters", func(t *testing.T) { testConcurrentWriters(t, factory) })
}

func testSetAndGet(t *testing.T, factory HarnessFactory) {
	h := factory(t)
	ctx := context.Background()
	data := []byte(`{"id":1,"name":"Alice"}`)

	if err := h.Storage.Set(ctx, "test-key", data, storage.WithTTL(time.Hour)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	item, err := h.Storage.Get(ctx, "test-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil {
		t.Fatal("Expected item to exist, got nil")
	}
	if string(item.Data) != string(data) {
		t.Errorf("Expected data %s, got %s", data, item.Data)
	}
}

func testGetNonExistent(t *testing.T, factory HarnessFactory) {
	h := factory(t)

	item, err := h.Storage.Get(context.Background(), "non-existent-key")
	if err != nil {
		t.Fatalf("Failed to get non-existent key: %v", err)
	}
	if item != nil {
		t.Error("Expected nil for non-existent key, got item")
	}
}

func testOverwrite(t *testing.T, factory HarnessFactory) {
	h := factory(t)
	ctx := context.Background()

	if err := h.Storage.Set(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Set first: %v", err)
	}
	if err := h.Storage.Set(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("Set second: %v", err)
	}

	item, err := h.Storage.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || string(item.Data) != "second" {
		t.Errorf("Expected last write to win, got %v", item)
	}
}

func testIdempotentSet(t *testing.T, factory HarnessFactory) {
	h := factory(t)
	ctx := context.Background()
	data := []byte(`{"id":2}`)

	for i := 0; i < 2; i++ {
		if err := h.Storage.Set(ctx, "k", data, storage.WithTTL(time.Hour)); err != nil {
			t.Fatalf("Set #%d: %v", i, err)
		}
	}

	item, err := h.Storage.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || string(item.Data) != string(data) {
		t.Errorf("Expected %s after repeated Set, got %v", data, item)
	}
}

func testTTL(t *testing.T, factory HarnessFactory) {
	h := factory(t)
	ctx := context.Background()
	ttl := 2 * time.Second

	if err := h.Storage.Set(ctx, "ttl-key", []byte("ttl data"), storage.WithTTL(ttl)); err != nil {
		t.Fatalf("Failed to set data with TTL: %v", err)
	}

	h.Advance(ttl / 2)
	item, err := h.Storage.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	if item == nil {
		t.Fatal("Expected item to exist before expiry, got nil")
	}

	h.Advance(ttl)
	item, err = h.Storage.Get(ctx, "ttl-key")
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if item != nil {
		t.Error("Expected nil for expired data, got item")
	}
}

func testNoTTL(t *testing.T, factory HarnessFactory) {
	h := factory(t)
	ctx := context.Background()

	if err := h.Storage.Set(ctx, "forever", []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	h.Advance(24 * time.Hour)

	item, err := h.Storage.Get(ctx, "forever")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil {
		t.Error("Expected item without TTL to persist")
	}
}

func testInvalidTTL(t *testing.T, factory HarnessFactory) {
	h := factory(t)

	err := h.Storage.Set(context.Background(), "k", []byte("x"), storage.WithTTL(-time.Second))
	if !errors.Is(err, storage.ErrInvalidOptions) {
		t.Fatalf("Set with negative TTL: got %v, want ErrInvalidOptions", err)
	}
}

func testKeyIsolation(t *testing.T, factory HarnessFactory) {
	h := factory(t)
	ctx := context.Background()

	if err := h.Storage.Set(ctx, "a", []byte("A")); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := h.Storage.Set(ctx, "b", []byte("B")); err != nil {
		t.Fatalf("Set b: %v", err)
	}

	for key, want := range map[string]string{"a": "A", "b": "B"} {
		item, err := h.Storage.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get %s: %v", key, err)
		}
		if item == nil || string(item.Data) != want {
			t.Errorf("Get %s = %v, want %s", key, item, want)
		}
	}
}

func testConcurrentWriters(t *testing.T, factory HarnessFactory) {
	h := factory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := h.Storage.Set(ctx, "shared", []byte(fmt.Sprintf("v%d", i%2)), storage.WithTTL(time.Hour)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Set: %v", err)
	}

	item, err := h.Storage.Get(ctx, "shared")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || (string(item.Data) != "v0" && string(item.Data) != "v1") {
		t.Errorf("Expected one of the written values, got %v", item)
	}
}
