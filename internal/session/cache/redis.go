// Package cache publishes revoked access-token jtis to Redis so request middleware can reject them
// without a database round trip. The session ledger stays authoritative; a missing marker proves nothing.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"school-backoffice/backend/internal/session/domain"
)

const keyPrefix = "revoked:jti:"

// RevocationCache stores short-lived "this jti is revoked" markers.
type RevocationCache struct {
	cli *redis.Client
	now func() time.Time
}

// New parses url, connects and pings. The caller owns Close.
func New(ctx context.Context, url string) (*RevocationCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(cli), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(cli *redis.Client) *RevocationCache {
	return &RevocationCache{cli: cli, now: time.Now}
}

func (c *RevocationCache) Close() error {
	return c.cli.Close()
}

// MarkRevoked writes one marker per session, expiring when the access token itself would.
// Sessions already past expiry are skipped.
func (c *RevocationCache) MarkRevoked(ctx context.Context, sessions []domain.RevokedSession) error {
	now := c.now()
	pipe := c.cli.Pipeline()
	queued := 0
	for _, s := range sessions {
		ttl := s.ExpiresAt.Sub(now)
		if ttl <= 0 || s.JTI == "" {
			continue
		}
		pipe.Set(ctx, keyPrefix+s.JTI, "1", ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mark revoked: %w", err)
	}
	return nil
}

// IsRevoked reports whether a marker exists for jti. false means "unknown", not "valid".
func (c *RevocationCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := c.cli.Get(ctx, keyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get revoked: %w", err)
	}
	return true, nil
}

// Ping checks connectivity for health reporting.
func (c *RevocationCache) Ping(ctx context.Context) error {
	return c.cli.Ping(ctx).Err()
}
