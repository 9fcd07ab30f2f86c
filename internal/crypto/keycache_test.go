package crypto

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyCacheSingleFlight(t *testing.T) {
	cache := NewKeyCache()

	var calls int32
	resolver := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond) // widen the race window
		return []byte("resolved-key"), nil
	}

	const concurrency = 16
	var wg sync.WaitGroup
	results := make([][]byte, concurrency)
	errs := make([]error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrResolve(context.Background(), resolver)
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected exactly 1 resolver call, got %d", got)
	}
	for i := 0; i < concurrency; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d got error: %v", i, errs[i])
		}
		if string(results[i]) != "resolved-key" {
			t.Errorf("Caller %d got wrong key", i)
		}
	}
}

func TestKeyCacheCachesResult(t *testing.T) {
	cache := NewKeyCache()

	var calls int
	resolver := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("key"), nil
	}

	for i := 0; i < 3; i++ {
		if _, err := cache.GetOrResolve(context.Background(), resolver); err != nil {
			t.Fatalf("GetOrResolve failed: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 resolver call, got %d", calls)
	}
	if !cache.Cached() {
		t.Error("Expected key to be cached")
	}
}

func TestKeyCacheErrorNotCached(t *testing.T) {
	cache := NewKeyCache()
	wantErr := errors.New("decryption failed")

	var calls int
	failing := func(ctx context.Context) ([]byte, error) {
		calls++
		return nil, wantErr
	}

	if _, err := cache.GetOrResolve(context.Background(), failing); !errors.Is(err, wantErr) {
		t.Fatalf("Expected resolver error, got %v", err)
	}
	if cache.Cached() {
		t.Error("Failed resolution should not be cached")
	}

	// A later call should retry.
	if _, err := cache.GetOrResolve(context.Background(), failing); !errors.Is(err, wantErr) {
		t.Fatalf("Expected resolver error on retry, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 resolver calls, got %d", calls)
	}
}

func TestKeyCacheClearWipes(t *testing.T) {
	cache := NewKeyCache()

	key, err := cache.GetOrResolve(context.Background(), func(ctx context.Context) ([]byte, error) {
		return []byte{1, 2, 3, 4}, nil
	})
	if err != nil {
		t.Fatalf("GetOrResolve failed: %v", err)
	}

	cache.Clear()

	if cache.Cached() {
		t.Error("Expected cache to be empty after Clear")
	}
	for i, b := range key {
		if b != 0 {
			t.Fatalf("Byte %d not wiped: %d", i, b)
		}
	}
}
