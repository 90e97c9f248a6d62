package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestConcurrencyScriptsCompile(t *testing.T) {
	if concurrencyAcquireScript == nil || concurrencyReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestConcurrencyLimiter_CapsPerCaller(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	l := NewConcurrencyLimiter(rdb, "", 1, time.Hour)

	ok, err := l.Acquire(ctx, "caller-1")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = l.Acquire(ctx, "caller-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire to be rejected")
	}

	ok, err = l.Acquire(ctx, "caller-2")
	if err != nil || !ok {
		t.Fatalf("expected other caller to be unaffected, ok=%v err=%v", ok, err)
	}

	if err := l.Release(ctx, "caller-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("calls:active:caller-1") {
		t.Fatalf("expected key deleted once count reaches zero")
	}
	ok, err = l.Acquire(ctx, "caller-1")
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
