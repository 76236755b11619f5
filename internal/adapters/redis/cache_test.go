package redisad_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisad "resort_booking/internal/adapters/redis"
)

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redisad.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	var n int
	ok, err := c.Get(ctx, "avail:1:2026-03-02:2026-03-05", &n)
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "avail:1:2026-03-02:2026-03-05", 2, 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err = c.Get(ctx, "avail:1:2026-03-02:2026-03-05", &n)
	if err != nil || !ok || n != 2 {
		t.Fatalf("expected hit with 2, got ok=%v n=%d err=%v", ok, n, err)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 30); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(31_000_000_000) // 31s

	var s string
	ok, err := c.Get(ctx, "k", &s)
	if err != nil || ok {
		t.Fatalf("expected miss after TTL, got ok=%v err=%v", ok, err)
	}
}

func TestCache_Del(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", 1, 60)
	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	var n int
	if ok, _ := c.Get(ctx, "k", &n); ok {
		t.Fatalf("expected miss after del")
	}
}
