package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*InboxCounts, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	counts, err := NewInboxCounts("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create inbox count cache: %v", err)
	}
	t.Cleanup(func() { counts.Close() })
	return counts, s
}

func TestNewInboxCounts(t *testing.T) {
	counts, _ := setupTestRedis(t, time.Minute)
	if err := counts.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewInboxCountsRejectsBadURL(t *testing.T) {
	if _, err := NewInboxCounts("not-a-url", time.Minute); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSetAndGet(t *testing.T) {
	counts, s := setupTestRedis(t, 15*time.Second)
	ctx := context.Background()

	if _, ok, err := counts.Get(ctx, "ws1", "u1"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := counts.Set(ctx, "ws1", "u1", 7); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	count, ok, err := counts.Get(ctx, "ws1", "u1")
	if err != nil || !ok || count != 7 {
		t.Fatalf("expected hit 7, got %d ok=%v err=%v", count, ok, err)
	}
	if ttl := s.TTL("inbox:count:ws1:u1"); ttl != 15*time.Second {
		t.Errorf("expected 15s TTL, got %v", ttl)
	}

	s.FastForward(16 * time.Second)
	if _, ok, _ := counts.Get(ctx, "ws1", "u1"); ok {
		t.Error("expected entry to expire")
	}
}

func TestInvalidateWorkspace(t *testing.T) {
	counts, s := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		if err := counts.Set(ctx, "ws1", user, 3); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := counts.Set(ctx, "ws10", "u1", 4); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := counts.InvalidateWorkspace(ctx, "ws1"); err != nil {
		t.Fatalf("InvalidateWorkspace failed: %v", err)
	}
	if s.Exists("inbox:count:ws1:u1") || s.Exists("inbox:count:ws1:u2") {
		t.Error("expected ws1 counts removed")
	}
	if !s.Exists("inbox:count:ws10:u1") {
		t.Error("expected other workspace untouched")
	}
	if err := counts.InvalidateWorkspace(ctx, "empty"); err != nil {
		t.Fatalf("invalidate with no keys: %v", err)
	}
}

func TestZeroTTLDisablesCache(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	counts := NewInboxCountsWithClient(client, 0)
	defer counts.Close()
	ctx := context.Background()

	if counts.Enabled() {
		t.Fatal("expected disabled cache")
	}
	if err := counts.Set(ctx, "ws1", "u1", 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if len(s.Keys()) != 0 {
		t.Fatalf("expected nothing written, got %v", s.Keys())
	}
	if _, ok, _ := counts.Get(ctx, "ws1", "u1"); ok {
		t.Fatal("expected miss")
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	var counts *InboxCounts
	if counts.Enabled() {
		t.Fatal("nil cache must be disabled")
	}
	if _, ok, err := counts.Get(context.Background(), "ws1", "u1"); ok || err != nil {
		t.Fatalf("unexpected result ok=%v err=%v", ok, err)
	}
}
