package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"school-backoffice/backend/internal/session/domain"
)

func newTestCache(t *testing.T) (*RevocationCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	c := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = c.Close()
		mr.Close()
	})
	return c, mr
}

func TestRevocationCache_MarkAndCheck(t *testing.T) {
	c, mr := newTestCache(t)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	err := c.MarkRevoked(ctx, []domain.RevokedSession{
		{ID: "s1", JTI: "jti-live", ExpiresAt: now.Add(10 * time.Minute)},
		{ID: "s2", JTI: "jti-expired", ExpiresAt: now.Add(-time.Minute)},
	})
	if err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	if ok, err := c.IsRevoked(ctx, "jti-live"); err != nil || !ok {
		t.Errorf("IsRevoked(jti-live) = %v, %v", ok, err)
	}
	if ok, err := c.IsRevoked(ctx, "jti-expired"); err != nil || ok {
		t.Errorf("IsRevoked(jti-expired) = %v, %v", ok, err)
	}
	if ttl := mr.TTL(keyPrefix + "jti-live"); ttl != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", ttl)
	}

	mr.FastForward(11 * time.Minute)
	if ok, _ := c.IsRevoked(ctx, "jti-live"); ok {
		t.Error("marker should expire with the access token")
	}
}

func TestRevocationCache_EmptyBatch(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.MarkRevoked(context.Background(), nil); err != nil {
		t.Fatalf("MarkRevoked(nil): %v", err)
	}
}

func TestRevocationCache_Unavailable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	if _, err := c.IsRevoked(context.Background(), "x"); err == nil {
		t.Fatal("IsRevoked should fail when redis is down")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("Ping should fail when redis is down")
	}
}

func TestNew_BadURL(t *testing.T) {
	if _, err := New(context.Background(), "not-a-url://"); err == nil {
		t.Fatal("New should reject an invalid url")
	}
}
