package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/bastion"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client)
}

func TestRedisCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t)

	if _, ok := c.Get(ctx, "u1", "editPost"); ok {
		t.Fatal("expected cache miss")
	}

	c.Set(ctx, "u1", "editPost", &bastion.CheckResult{Allowed: true, Decision: bastion.DecisionAllow}, time.Minute)

	got, ok := c.Get(ctx, "u1", "editPost")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Allowed || got.Decision != bastion.DecisionAllow {
		t.Fatalf("unexpected cached result: %+v", got)
	}
}

func TestRedisCacheZeroTTLNotStored(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t)

	c.Set(ctx, "u1", "editPost", &bastion.CheckResult{Allowed: true}, 0)

	if _, ok := c.Get(ctx, "u1", "editPost"); ok {
		t.Fatal("zero TTL entries must not be stored")
	}
}

func TestRedisCacheInvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t)

	c.Set(ctx, "u1", "editPost", &bastion.CheckResult{Allowed: true}, time.Minute)
	c.Set(ctx, "u1", "deletePost", &bastion.CheckResult{Allowed: false}, time.Minute)
	c.Set(ctx, "u2", "editPost", &bastion.CheckResult{Allowed: true}, time.Minute)

	c.InvalidateUser(ctx, "u1")

	if _, ok := c.Get(ctx, "u1", "editPost"); ok {
		t.Fatal("u1 editPost should be invalidated")
	}
	if _, ok := c.Get(ctx, "u1", "deletePost"); ok {
		t.Fatal("u1 deletePost should be invalidated")
	}
	if _, ok := c.Get(ctx, "u2", "editPost"); !ok {
		t.Fatal("u2 editPost should still be cached")
	}
}

func TestRedisCachePurge(t *testing.T) {
	ctx := context.Background()
	c := newTestRedis(t)

	c.Set(ctx, "u1", "editPost", &bastion.CheckResult{Allowed: true}, time.Minute)
	c.Set(ctx, "u2", "deletePost", &bastion.CheckResult{Allowed: true}, time.Minute)

	c.Purge(ctx)

	if _, ok := c.Get(ctx, "u1", "editPost"); ok {
		t.Fatal("purge should remove all entries")
	}
	if _, ok := c.Get(ctx, "u2", "deletePost"); ok {
		t.Fatal("purge should remove all entries")
	}
}

func TestRedisCacheCorruptEntryDropped(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	c := NewRedis(client)

	srv.Set("bastion:check:u1:editPost", "{not json")

	if _, ok := c.Get(ctx, "u1", "editPost"); ok {
		t.Fatal("corrupt entry must be a miss")
	}
	if srv.Exists("bastion:check:u1:editPost") {
		t.Fatal("corrupt entry should have been deleted")
	}
}
