// Package revocation holds the access-token denylist for immediate-kill
// scenarios. Access tokens are stateless; revoking one before expiry means
// recording its jti with a TTL covering the remaining token life.
package revocation

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked access-token jtis.
type Denylist interface {
	// Revoke records the jti until ttl elapses. Zero or negative ttl is a no-op
	// (token already expired on its own).
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	// IsRevoked reports whether the jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisDenylist implements Denylist over Redis with a key per jti; the TTL
// lets keys disappear once the token could no longer verify anyway.
type RedisDenylist struct {
	client *redis.Client
	prefix string
}

// NewRedisDenylist returns a denylist backed by the given client. Prefix may be empty.
func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "denylist"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisDenylist{client: client, prefix: prefix + "jti:"}
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.prefix+jti, "1", ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// None is a Denylist that revokes nothing, for deployments without Redis.
type None struct{}

func (None) Revoke(ctx context.Context, jti string, ttl time.Duration) error { return nil }

func (None) IsRevoked(ctx context.Context, jti string) (bool, error) { return false, nil }
