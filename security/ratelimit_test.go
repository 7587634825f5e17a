package security

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10, 20, nil)
	defer rl.Stop()

	if rl.burst != 20 {
		t.Errorf("burst = %d, want 20", rl.burst)
	}
	if rl.maxEntries != defaultMaxLimiterEntries {
		t.Errorf("maxEntries = %d, want %d", rl.maxEntries, defaultMaxLimiterEntries)
	}
	if rl.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(10, 5, slog.Default())
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Errorf("Allow() request %d should be allowed", i+1)
		}
	}

	if rl.Allow("10.0.0.1") {
		t.Error("Allow() should return false when the burst is exhausted")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("Allow() for another key should be allowed")
	}
}

func TestRateLimiter_Allow_Refill(t *testing.T) {
	rl := NewRateLimiter(2, 2, slog.Default())
	defer rl.Stop()

	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("k")
	rl.Allow("k")
	if rl.Allow("k") {
		t.Fatal("Allow() should be limited after burst")
	}

	now = now.Add(600 * time.Millisecond)
	if !rl.Allow("k") {
		t.Error("Allow() should succeed after the bucket refilled")
	}
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiterWithMaxEntries(10, 1, 2, slog.Default())
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("a") // a is now most recent
	rl.Allow("c") // evicts b

	if rl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rl.Len())
	}
	if _, ok := rl.entries["b"]; ok {
		t.Error("least recently used key should have been evicted")
	}
	if rl.evictions != 1 {
		t.Errorf("evictions = %d, want 1", rl.evictions)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 20, slog.Default())
	defer rl.Stop()

	now := time.Unix(1700000000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("idle-1")
	rl.Allow("idle-2")
	now = now.Add(time.Hour)
	rl.Allow("active")

	if removed := rl.Cleanup(30 * time.Minute); removed != 2 {
		t.Errorf("Cleanup() removed = %d, want 2", removed)
	}
	if rl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", rl.Len())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, slog.Default())
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				rl.Allow(fmt.Sprintf("key-%d", n%5))
			}
		}(i)
	}
	wg.Wait()

	if rl.Len() != 5 {
		t.Errorf("Len() = %d, want 5", rl.Len())
	}
}

func TestRateLimiter_Stop(t *testing.T) {
	rl := NewRateLimiter(10, 20, slog.Default())
	rl.Stop()
	rl.Stop()
}
