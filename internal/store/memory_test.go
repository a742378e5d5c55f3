package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreGetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Fatalf("Get: got %q, %v", v, err)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemoryStoreIncr(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "counter", time.Minute)
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != i {
			t.Fatalf("Incr: got %d, want %d", n, i)
		}
	}
}

func TestMemoryStoreMultiSetAtomicity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	kv := map[string]string{"a": "1", "b": "2", "c": "3"}
	if err := s.MultiSet(ctx, kv, time.Minute); err != nil {
		t.Fatalf("MultiSet: %v", err)
	}
	for k, want := range kv {
		got, err := s.Get(ctx, k)
		if err != nil || got != want {
			t.Fatalf("Get(%q): got %q, %v, want %q", k, got, err, want)
		}
	}
}
