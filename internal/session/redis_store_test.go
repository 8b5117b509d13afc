package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewRedisStore(t *testing.T) {
	store := setupTestRedis(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	err := store.SaveRefreshSession(ctx, "hash-1", "usr_123", time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	user, err := store.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if user.ID != "usr_123" {
		t.Errorf("user id = %q", user.ID)
	}
	if user.Role != "viewer" {
		t.Errorf("empty stored role must default to viewer, got %q", user.Role)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-exp", "usr_1", time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	s.FastForward(2 * time.Millisecond)

	if _, err := store.LookupRefreshSession(ctx, "hash-exp"); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	if err := store.SaveRefreshSession(ctx, "hash-rev", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := store.RevokeRefreshSession(ctx, "hash-rev"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := store.LookupRefreshSession(ctx, "hash-rev"); err == nil {
		t.Error("revoked token still resolvable")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store := setupTestRedis(t)
	if _, err := store.LookupRefreshSession(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown token")
	}
}
