// Package store persists MFA challenges in a short-TTL keyed store. The TTL
// handles expiry without a sweep job; attempt counting and the
// created->consumed transition are atomic so parallel guesses cannot bypass
// the attempt cap or consume a challenge twice.
package store

import (
	"context"
	"errors"
	"time"

	"janua/engine/internal/mfa/domain"
)

// ErrNotFound is returned when the challenge id is unknown or expired.
var ErrNotFound = errors.New("challenge not found")

// Store defines persistence for MFA challenges.
type Store interface {
	// Put stores the challenge with the given TTL and makes it the user's
	// current challenge. Any prior unconsumed challenge for the same
	// (tenant, user) is invalidated; only one live challenge exists per user.
	Put(ctx context.Context, c *domain.Challenge, ttl time.Duration) error
	// Get returns the challenge, or ErrNotFound if missing or expired.
	Get(ctx context.Context, id string) (*domain.Challenge, error)
	// IncrementAttempts atomically bumps the attempt counter and returns the
	// new value.
	IncrementAttempts(ctx context.Context, id string) (int64, error)
	// Consume transitions the challenge CREATED -> CONSUMED atomically.
	// Returns false when the challenge was not in CREATED (already consumed,
	// invalidated, or gone); exactly one caller can get true.
	Consume(ctx context.Context, id string) (bool, error)
	// Invalidate transitions the challenge to INVALID. Terminal; idempotent.
	Invalidate(ctx context.Context, id string) error
}
