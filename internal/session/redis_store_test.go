package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestSaveAndLookup(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "hash-1", 123, "Avery", expiresAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := store.Lookup(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if data.UserID != 123 || data.Name != "Avery" {
		t.Errorf("unexpected token data: %+v", data)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "expired", 456, "", time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	_, err := store.Lookup(ctx, "expired")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Lookup(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "hash-1", 1, "A", expiresAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "hash-2", 2, "B", expiresAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Revoke(ctx, "hash-1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "hash-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected revoked token to be gone, got %v", err)
	}

	data, err := store.Lookup(ctx, "hash-2")
	if err != nil {
		t.Fatalf("Lookup hash-2 after revoke failed: %v", err)
	}
	if data.UserID != 2 {
		t.Errorf("expected user 2, got %d", data.UserID)
	}
}

func TestRevokeNonExistentSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	if err := store.Revoke(context.Background(), "missing"); err != nil {
		t.Errorf("Revoke for non-existent token failed: %v", err)
	}
}
