package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"organaizer/api/internal/store"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client), mr
}

func TestSaveAndLookup(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour)
	if err := s.SaveRefreshSession(ctx, "hash-1", "usr_42", expires); err != nil {
		t.Fatalf("save: %v", err)
	}

	user, err := s.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.ID != "usr_42" {
		t.Errorf("expected usr_42, got %q", user.ID)
	}
	// Only the id is persisted; the caller re-reads the full user row.
	if user.DisplayName != "" || user.Email != "" {
		t.Errorf("lookup must return the bare user id, got %+v", user)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.LookupRefreshSession(context.Background(), "never-saved")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected store.ErrNotFound, got %v", err)
	}
}

func TestRevokeDeletesToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "hash-2", "usr_7", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.RevokeRefreshSession(ctx, "hash-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.LookupRefreshSession(ctx, "hash-2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
}

func TestRevokeUnknownTokenIsQuiet(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.RevokeRefreshSession(context.Background(), "never-saved"); err != nil {
		t.Fatalf("revoking an unknown token should not error, got %v", err)
	}
}

func TestKeysCarryRefreshPrefix(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "hash-3", "usr_9", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("refresh:hash-3") {
		t.Fatalf("expected key refresh:hash-3, keys: %v", mr.Keys())
	}
}

func TestTokenExpiresWithSession(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "hash-4", "usr_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.LookupRefreshSession(ctx, "hash-4"); err != nil {
		t.Fatalf("lookup before expiry: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := s.LookupRefreshSession(ctx, "hash-4"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired token to be gone, got %v", err)
	}
}

func TestPastExpiryGetsDefaultTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	// An already-expired timestamp falls back to the 30 day default
	// rather than writing a key with no TTL.
	if err := s.SaveRefreshSession(ctx, "hash-5", "usr_1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("save: %v", err)
	}
	ttl := mr.TTL("refresh:hash-5")
	if ttl <= 29*24*time.Hour || ttl > 30*24*time.Hour {
		t.Fatalf("expected ~30 day default TTL, got %v", ttl)
	}
}
