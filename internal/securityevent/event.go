// Package securityevent emits security incidents (refresh-token reuse,
// signing-key unavailability) to the downstream alerting pipeline.
// Emission is best-effort and asynchronous; auth flows never block on it.
package securityevent

import (
	"context"
	"time"
)

// Kind classifies a security event.
type Kind string

const (
	// KindTokenReuse fires when a superseded refresh token is replayed and
	// the family is mass-revoked.
	KindTokenReuse Kind = "token_reuse_detected"
	// KindKeyUnavailable fires when minting failed because no signing key
	// was loaded.
	KindKeyUnavailable Kind = "signing_key_unavailable"
)

// Event is one security incident.
type Event struct {
	Kind      Kind      `json:"kind"`
	TenantID  string    `json:"tenant_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	FamilyID  string    `json:"family_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	At        time.Time `json:"at"`
}

// Emitter delivers events to the alerting pipeline.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// Noop discards events. Used when no brokers are configured.
type Noop struct{}

func (Noop) Emit(ctx context.Context, e Event) error { return nil }
