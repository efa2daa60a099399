// Package rotation detects refresh-token reuse via family/sequence tracking
// and escalates to family-wide revocation on anomaly.
package rotation

import (
	"context"
	"errors"
	"time"

	"janua/engine/internal/security"
	"janua/engine/internal/securityevent"
	"janua/engine/internal/session/domain"
	sessionrepo "janua/engine/internal/session/repository"
	"janua/engine/internal/tenant"
)

var (
	// ErrTokenReuseDetected is the fatal, non-retryable outcome of replaying
	// a superseded refresh token. By the time the caller sees it, every
	// session in the family is already inactive.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrSessionNotFound covers missing sessions, tenant mismatches, and
	// revoked or expired sessions. One error for all three, so callers
	// cannot probe tenants or session state.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidToken mirrors security.ErrInvalidToken for forged or
	// malformed refresh tokens.
	ErrInvalidToken = security.ErrInvalidToken
)

// TokenPair is the outcome of a successful refresh.
type TokenPair struct {
	AccessToken     string
	AccessTokenID   string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// Tracker runs the rotation algorithm. The sequence comparison is strict
// equality; the bump is a storage-level compare-and-swap, so at most one
// refresh can succeed per (family, sequence) pair no matter how many callers
// race on the same token.
type Tracker struct {
	tokens   *security.TokenProvider
	sessions sessionrepo.Repository
	events   securityevent.Emitter
}

// NewTracker returns a Tracker over the given token provider and session
// repository. events may be nil.
func NewTracker(tokens *security.TokenProvider, sessions sessionrepo.Repository, events securityevent.Emitter) *Tracker {
	return &Tracker{tokens: tokens, sessions: sessions, events: events}
}

// Refresh verifies and rotates rawRefreshToken. The tenant scope comes from
// the verified token claim, never from the caller.
//
// Sequence outcomes:
//   - equal to stored: legitimate; sequence bumps atomically and a new token
//     pair is minted against the new sequence.
//   - less than stored: reuse; the whole family is revoked, a security event
//     fires, and the caller gets ErrTokenReuseDetected.
//   - greater than stored: forged; ErrInvalidToken with no session mutation,
//     so an attacker learns nothing about the correct sequence.
func (t *Tracker) Refresh(ctx context.Context, rawRefreshToken string) (*TokenPair, *domain.Session, error) {
	claims, err := t.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	ctx = tenant.WithTenant(ctx, claims.TenantID)

	sess, err := t.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, tenant.ErrMissingTenantContext) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	if sess.RefreshFamilyID != claims.FamilyID {
		return nil, nil, ErrInvalidToken
	}

	switch {
	case claims.Sequence < sess.RefreshSequence:
		// Replay of an already-superseded token. Punish, never re-sync.
		return nil, nil, t.punishReuse(ctx, sess)
	case claims.Sequence > sess.RefreshSequence:
		return nil, nil, ErrInvalidToken
	}

	if !sess.IsActive || sess.Expired(time.Now().UTC()) {
		return nil, nil, ErrSessionNotFound
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(rawRefreshToken, sess.RefreshTokenHash) {
		return nil, nil, ErrInvalidToken
	}

	now := time.Now().UTC()
	newSeq := sess.RefreshSequence + 1
	newRefresh, _, _, err := t.tokens.MintRefresh(sess.ID, sess.RefreshFamilyID, newSeq, sess.UserID, sess.TenantID)
	if err != nil {
		return nil, nil, t.mintFailure(sess, err)
	}
	accessToken, accessJTI, accessExp, err := t.tokens.MintAccess(sess.UserID, sess.TenantID, sess.ID, tenant.Roles(ctx))
	if err != nil {
		return nil, nil, t.mintFailure(sess, err)
	}

	err = t.sessions.RotateRefresh(ctx, sess.ID, sess.RefreshSequence, sessionrepo.Rotation{
		NewSequence:      newSeq,
		RefreshTokenHash: security.HashRefreshToken(newRefresh),
		AccessTokenID:    accessJTI,
		LastSeenAt:       now,
	})
	if err != nil {
		if errors.Is(err, sessionrepo.ErrSequenceConflict) {
			// A concurrent refresh won the swap. Retrying would legitimize
			// a replay, so a conflict is treated as reuse.
			return nil, nil, t.punishReuse(ctx, sess)
		}
		return nil, nil, err
	}

	sess.RefreshSequence = newSeq
	sess.AccessTokenID = accessJTI
	sess.LastSeenAt = &now
	return &TokenPair{
		AccessToken:     accessToken,
		AccessTokenID:   accessJTI,
		AccessExpiresAt: accessExp,
		RefreshToken:    newRefresh,
	}, sess, nil
}

func (t *Tracker) punishReuse(ctx context.Context, sess *domain.Session) error {
	if err := t.sessions.RevokeFamily(ctx, sess.RefreshFamilyID, domain.AnomalyTokenReuse); err != nil {
		return err
	}
	securityevent.EmitAsync(t.events, securityevent.Event{
		Kind:      securityevent.KindTokenReuse,
		TenantID:  sess.TenantID,
		UserID:    sess.UserID,
		SessionID: sess.ID,
		FamilyID:  sess.RefreshFamilyID,
		IPAddress: sess.IPAddress,
		At:        time.Now().UTC(),
	})
	return ErrTokenReuseDetected
}

func (t *Tracker) mintFailure(sess *domain.Session, err error) error {
	if errors.Is(err, security.ErrKeyUnavailable) {
		securityevent.EmitAsync(t.events, securityevent.Event{
			Kind:     securityevent.KindKeyUnavailable,
			TenantID: sess.TenantID,
			At:       time.Now().UTC(),
		})
	}
	return err
}
