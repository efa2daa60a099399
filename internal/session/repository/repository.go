package repository

import (
	"context"
	"errors"
	"time"

	"janua/engine/internal/session/domain"
)

// ErrSequenceConflict is returned by RotateRefresh when the conditional
// update matched no row: the stored sequence moved (or the session went
// inactive) between token verification and the write. Callers must treat a
// conflict as reuse, never retry it.
var ErrSequenceConflict = errors.New("refresh sequence conflict")

// Rotation carries the new rotation state written by a successful RotateRefresh.
type Rotation struct {
	NewSequence      int64
	RefreshTokenHash string
	AccessTokenID    string
	LastSeenAt       time.Time
}

// Repository defines persistence for sessions. All operations except
// SweepExpired are scoped by the tenant bound to ctx and fail closed without
// one. Revoke operations are idempotent: revoking an inactive session
// succeeds.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Revoke(ctx context.Context, id string) error
	// RevokeFamily deactivates every session sharing familyID and stamps the
	// anomaly flag on each. Used by theft detection.
	RevokeFamily(ctx context.Context, familyID, anomaly string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	// RotateRefresh is the linchpin compare-and-swap: it bumps the refresh
	// sequence by one iff the stored sequence still equals expectedSeq and
	// the session is active. At most one concurrent caller can win for a
	// given (familyID, expectedSeq) pair. Returns ErrSequenceConflict when
	// the condition did not hold.
	RotateRefresh(ctx context.Context, sessionID string, expectedSeq int64, rot Rotation) error
	// SweepExpired deactivates sessions past expires_at across all tenants.
	// System-scoped background pass; rows are kept for audit, only is_active
	// flips. Returns the number of sessions deactivated.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
