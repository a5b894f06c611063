package service

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryNegativeLookupCacheHitAndInvalidate(t *testing.T) {
	store := NewInMemoryNegativeLookupCacheStore()
	ctx := context.Background()

	if err := store.Set(ctx, "member.email", "ghost@club.dev", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	hit, err := store.Get(ctx, "member.email", "ghost@club.dev")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit for the cached unknown email")
	}

	// A different namespace must not see the entry.
	hit, err = store.Get(ctx, "session.title", "ghost@club.dev")
	if err != nil {
		t.Fatalf("get other namespace: %v", err)
	}
	if hit {
		t.Fatal("namespaces must be isolated")
	}

	if err := store.InvalidateNamespace(ctx, "member.email"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	hit, err = store.Get(ctx, "member.email", "ghost@club.dev")
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if hit {
		t.Fatal("expected miss after namespace invalidation")
	}
}

func TestInMemoryNegativeLookupCacheExpiry(t *testing.T) {
	store := NewInMemoryNegativeLookupCacheStore()
	ctx := context.Background()

	if err := store.Set(ctx, "member.email", "late@club.dev", 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	hit, err := store.Get(ctx, "member.email", "late@club.dev")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hit {
		t.Fatal("expected the entry to expire")
	}
}

func TestNoopNegativeLookupCacheNeverHits(t *testing.T) {
	store := NewNoopNegativeLookupCacheStore()
	ctx := context.Background()

	if err := store.Set(ctx, "member.email", "x@club.dev", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	hit, err := store.Get(ctx, "member.email", "x@club.dev")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if hit {
		t.Fatal("noop store must always miss")
	}
	if err := store.InvalidateNamespace(ctx, "member.email"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
}
