// Package mfa implements the challenge state machine gating token issuance
// pending a second factor.
package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"janua/engine/internal/mfa/backup"
	"janua/engine/internal/mfa/domain"
	"janua/engine/internal/mfa/store"
	"janua/engine/internal/notify"
	userdomain "janua/engine/internal/user/domain"
)

var (
	// ErrChallengeFailed is returned for wrong codes, terminal challenges,
	// and unknown challenge ids. The caller must restart sign-in.
	ErrChallengeFailed = errors.New("mfa challenge failed")
	// ErrChallengeExpired is returned when the challenge outlived its TTL.
	ErrChallengeExpired = errors.New("mfa challenge expired")
	// ErrUnsupportedMethod is returned when the user is not enrolled for the
	// requested method.
	ErrUnsupportedMethod = errors.New("unsupported mfa method")
)

// DefaultChallengeTTL bounds how long a challenge stays verifiable.
const DefaultChallengeTTL = 5 * time.Minute

// DefaultMaxAttempts is the attempt cap; the capping increment itself
// invalidates the challenge regardless of the submitted code.
const DefaultMaxAttempts = 5

// SignInMeta carries the request context captured at primary-factor time so
// a consumed challenge can promote into a session with the original device
// attribution.
type SignInMeta struct {
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
}

// Engine drives challenge creation and verification.
type Engine struct {
	store       store.Store
	backupCodes backup.Repository
	notifier    notify.Notifier
	ttl         time.Duration
	maxAttempts int64
}

// NewEngine returns an Engine over the given challenge store. backupCodes and
// notifier may be nil when those methods are not offered.
func NewEngine(s store.Store, backupCodes backup.Repository, notifier notify.Notifier, ttl time.Duration, maxAttempts int64) *Engine {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Engine{store: s, backupCodes: backupCodes, notifier: notifier, ttl: ttl, maxAttempts: maxAttempts}
}

// Methods returns the second-factor methods the user can answer with.
func (e *Engine) Methods(u *userdomain.User) []domain.Method {
	var out []domain.Method
	if u.TOTPSecret != "" {
		out = append(out, domain.MethodTOTP)
	}
	if u.Phone != "" && e.notifier != nil {
		out = append(out, domain.MethodSMS)
	}
	if e.backupCodes != nil {
		out = append(out, domain.MethodBackupCode)
	}
	return out
}

// CreateChallenge issues a new challenge for the user. Creating a new one
// invalidates any prior unconsumed challenge for the same user (the store
// enforces one live challenge per user). For SMS, the code is generated,
// hashed into the challenge, and delivered fire-and-forget.
func (e *Engine) CreateChallenge(ctx context.Context, u *userdomain.User, method domain.Method, meta SignInMeta) (*domain.Challenge, error) {
	now := time.Now().UTC()
	c := &domain.Challenge{
		ID:                uuid.New().String(),
		UserID:            u.ID,
		TenantID:          u.TenantID,
		Method:            method,
		State:             domain.StateCreated,
		DeviceFingerprint: meta.DeviceFingerprint,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		CreatedAt:         now,
		ExpiresAt:         now.Add(e.ttl),
	}
	switch method {
	case domain.MethodTOTP:
		if u.TOTPSecret == "" {
			return nil, ErrUnsupportedMethod
		}
	case domain.MethodSMS:
		if u.Phone == "" || e.notifier == nil {
			return nil, ErrUnsupportedMethod
		}
		code, err := GenerateOTP()
		if err != nil {
			return nil, err
		}
		c.CodeHash = HashOTP(code)
		notify.Async(e.notifier, u.Phone, code)
	case domain.MethodBackupCode:
		if e.backupCodes == nil {
			return nil, ErrUnsupportedMethod
		}
	default:
		return nil, ErrUnsupportedMethod
	}
	if err := e.store.Put(ctx, c, e.ttl); err != nil {
		return nil, err
	}
	return c, nil
}

// Get looks up a challenge by id. The orchestrator uses it to recover the
// tenant and user a verification request belongs to before loading the user.
func (e *Engine) Get(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	c, err := e.store.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChallengeFailed
		}
		return nil, err
	}
	return c, nil
}

// Verify runs one verification attempt against the challenge. The attempt
// counter increments atomically before the code is evaluated; the increment
// that reaches the cap invalidates the challenge even if the code submitted
// with it is correct. On success the challenge transitions to CONSUMED and
// is returned so the orchestrator can promote it into a session.
//
// Backup codes are consumed the moment they match, before any later checks,
// so an accepted code can never be replayed.
func (e *Engine) Verify(ctx context.Context, u *userdomain.User, challengeID, code string) (*domain.Challenge, error) {
	c, err := e.store.Get(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChallengeFailed
		}
		return nil, err
	}
	if c.UserID != u.ID || c.TenantID != u.TenantID {
		return nil, ErrChallengeFailed
	}
	if c.State != domain.StateCreated {
		return nil, ErrChallengeFailed
	}
	now := time.Now().UTC()
	if c.Expired(now) {
		_ = e.store.Invalidate(ctx, challengeID)
		return nil, ErrChallengeExpired
	}
	attempts, err := e.store.IncrementAttempts(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChallengeFailed
		}
		return nil, err
	}
	if attempts > e.maxAttempts {
		_ = e.store.Invalidate(ctx, challengeID)
		return nil, ErrChallengeFailed
	}

	ok, err := e.checkCode(ctx, u, c, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		if attempts >= e.maxAttempts {
			_ = e.store.Invalidate(ctx, challengeID)
		}
		return nil, ErrChallengeFailed
	}

	consumed, err := e.store.Consume(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrChallengeFailed
	}
	c.State = domain.StateConsumed
	c.Attempts = attempts
	return c, nil
}

func (e *Engine) checkCode(ctx context.Context, u *userdomain.User, c *domain.Challenge, code string) (bool, error) {
	switch c.Method {
	case domain.MethodTOTP:
		return ValidateTOTP(code, u.TOTPSecret), nil
	case domain.MethodSMS:
		return c.CodeHash != "" && OTPEqual(code, c.CodeHash), nil
	case domain.MethodBackupCode:
		if e.backupCodes == nil {
			return false, nil
		}
		return e.backupCodes.Consume(ctx, u.ID, HashOTP(code))
	default:
		return false, nil
	}
}
