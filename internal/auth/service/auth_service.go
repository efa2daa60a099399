// Package service sequences the credential verifier, MFA engine, token
// service, and session store into the public auth operations.
package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"janua/engine/internal/audit"
	"janua/engine/internal/identity"
	identitydomain "janua/engine/internal/identity/domain"
	identityrepo "janua/engine/internal/identity/repository"
	"janua/engine/internal/mfa"
	mfadomain "janua/engine/internal/mfa/domain"
	"janua/engine/internal/revocation"
	"janua/engine/internal/rotation"
	"janua/engine/internal/security"
	sessiondomain "janua/engine/internal/session/domain"
	sessionrepo "janua/engine/internal/session/repository"
	"janua/engine/internal/tenant"
	userdomain "janua/engine/internal/user/domain"
	userrepo "janua/engine/internal/user/repository"
)

// Sentinel errors; the handler maps them to HTTP responses. External callers
// only ever see generic "authentication failed" / "please sign in again"
// messages built from these.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = identity.ErrInvalidCredentials
	ErrInvalidToken           = security.ErrInvalidToken
	ErrTokenReuseDetected     = rotation.ErrTokenReuseDetected
	ErrSessionNotFound        = rotation.ErrSessionNotFound
	ErrMFAChallengeFailed     = mfa.ErrChallengeFailed
	ErrMFAChallengeExpired    = mfa.ErrChallengeExpired
)

// Tokens is the issued credential pair returned to callers.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	TenantID     string
	SessionID    string
}

// SignInResult is either issued tokens or a pending MFA challenge.
type SignInResult struct {
	Tokens      *Tokens
	MFARequired bool
	ChallengeID string
	Methods     []mfadomain.Method
}

// SessionSummary is the caller-facing view of one session row.
type SessionSummary struct {
	ID          string
	Device      string
	IPAddress   string
	CreatedAt   time.Time
	LastSeenAt  *time.Time
	IsActive    bool
	IsCurrent   bool
	AnomalyFlag string
}

// AuthService is the orchestrator over the engine's components.
type AuthService struct {
	// RequireVerifiedEmail makes Register create users in the unverified
	// state, keeping them from signing in until verification flips them
	// active out of band.
	RequireVerifiedEmail bool

	users      userrepo.Repository
	identities identityrepo.Repository
	sessions   sessionrepo.Repository
	verifier   identity.Verifier
	mfaEngine  *mfa.Engine
	tracker    *rotation.Tracker
	tokens     *security.TokenProvider
	hasher     *security.Hasher
	denylist   revocation.Denylist
	auditLog   audit.AuditLogger
	sessionTTL time.Duration
}

// NewAuthService returns an AuthService with the given dependencies.
// denylist and auditLog may be nil.
func NewAuthService(
	users userrepo.Repository,
	identities identityrepo.Repository,
	sessions sessionrepo.Repository,
	verifier identity.Verifier,
	mfaEngine *mfa.Engine,
	tracker *rotation.Tracker,
	tokens *security.TokenProvider,
	hasher *security.Hasher,
	denylist revocation.Denylist,
	auditLog audit.AuditLogger,
) *AuthService {
	if denylist == nil {
		denylist = revocation.None{}
	}
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &AuthService{
		users:      users,
		identities: identities,
		sessions:   sessions,
		verifier:   verifier,
		mfaEngine:  mfaEngine,
		tracker:    tracker,
		tokens:     tokens,
		hasher:     hasher,
		denylist:   denylist,
		auditLog:   auditLog,
		sessionTTL: tokens.RefreshTTL(),
	}
}

// Register creates a user and local identity within the tenant bound to ctx.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*userdomain.User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	status := userdomain.UserStatusActive
	if s.RequireVerifiedEmail {
		status = userdomain.UserStatusUnverified
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	ident := &identitydomain.Identity{
		ID:           uuid.New().String(),
		UserID:       user.ID,
		TenantID:     tenantID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	if err := s.identities.Create(ctx, ident); err != nil {
		return nil, err
	}
	s.auditLog.LogEvent(ctx, tenantID, user.ID, "register", "user", "")
	return user, nil
}

// SignIn runs the primary factor and either issues tokens or opens an MFA
// challenge. The tenant bound to ctx scopes the credential lookup.
func (s *AuthService) SignIn(ctx context.Context, email, password string, meta mfa.SignInMeta) (*SignInResult, error) {
	verified, err := s.verifier.VerifyPrimary(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.auditLog.LogEvent(ctx, "", "", "sign_in_failure", "session", "")
		}
		return nil, err
	}
	return s.completePrimary(ctx, verified, meta)
}

// SignInExternal continues sign-in from an already-verified external
// identity claim produced by a protocol adapter (OAuth/SAML/OIDC/WebAuthn).
// The same MFA gate and session path apply.
func (s *AuthService) SignInExternal(ctx context.Context, verified *identity.VerifiedIdentity, meta mfa.SignInMeta) (*SignInResult, error) {
	if verified == nil || verified.UserID == "" || verified.TenantID == "" {
		return nil, ErrInvalidCredentials
	}
	return s.completePrimary(ctx, verified, meta)
}

func (s *AuthService) completePrimary(ctx context.Context, verified *identity.VerifiedIdentity, meta mfa.SignInMeta) (*SignInResult, error) {
	ctx = tenant.WithTenant(ctx, verified.TenantID)
	user, err := s.users.GetByID(ctx, verified.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.CanAuthenticate() {
		return nil, ErrInvalidCredentials
	}
	if user.MFAEnabled {
		methods := s.mfaEngine.Methods(user)
		if len(methods) == 0 {
			return nil, ErrInvalidCredentials
		}
		challenge, err := s.mfaEngine.CreateChallenge(ctx, user, methods[0], meta)
		if err != nil {
			return nil, err
		}
		s.auditLog.LogEvent(ctx, user.TenantID, user.ID, "mfa_challenge_created", "mfa_challenge", string(challenge.Method))
		return &SignInResult{MFARequired: true, ChallengeID: challenge.ID, Methods: methods}, nil
	}
	tokens, err := s.createSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Tokens: tokens}, nil
}

// VerifyMFA completes a pending challenge. On CONSUMED the challenge is
// promoted into a session with the device attribution captured at sign-in.
// INVALID challenges fail; the caller must restart sign-in.
func (s *AuthService) VerifyMFA(ctx context.Context, challengeID, code string) (*Tokens, error) {
	challenge, err := s.mfaEngine.Get(ctx, challengeID)
	if err != nil {
		return nil, ErrMFAChallengeFailed
	}
	ctx = tenant.WithTenant(ctx, challenge.TenantID)
	user, err := s.users.GetByID(ctx, challenge.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.CanAuthenticate() {
		return nil, ErrMFAChallengeFailed
	}
	consumed, err := s.mfaEngine.Verify(ctx, user, challengeID, code)
	if err != nil {
		s.auditLog.LogEvent(ctx, challenge.TenantID, challenge.UserID, "mfa_verify_failure", "mfa_challenge", "")
		return nil, err
	}
	meta := mfa.SignInMeta{
		DeviceFingerprint: consumed.DeviceFingerprint,
		IPAddress:         consumed.IPAddress,
		UserAgent:         consumed.UserAgent,
	}
	return s.createSession(ctx, user, meta)
}

// Refresh rotates the refresh token. ErrTokenReuseDetected propagates as-is:
// it is the user-facing "re-authenticate" signal.
func (s *AuthService) Refresh(ctx context.Context, rawRefreshToken string) (*Tokens, error) {
	pair, sess, err := s.tracker.Refresh(ctx, rawRefreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenReuseDetected) {
			s.auditLog.LogEvent(ctx, "", "", "token_reuse_detected", "session", "")
		}
		return nil, err
	}
	s.auditLog.LogEvent(ctx, sess.TenantID, sess.UserID, "refresh", "session", sess.ID)
	return &Tokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.AccessExpiresAt,
		UserID:       sess.UserID,
		TenantID:     sess.TenantID,
		SessionID:    sess.ID,
	}, nil
}

// SignOut revokes the session owning the refresh token. It always succeeds
// from the caller's perspective, even when the token is garbage or already
// revoked, so sign-out cannot be used to probe token validity.
func (s *AuthService) SignOut(ctx context.Context, rawRefreshToken string) {
	claims, err := s.tokens.VerifyRefresh(rawRefreshToken)
	if err != nil {
		return
	}
	ctx = tenant.WithTenant(ctx, claims.TenantID)
	sess, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil || sess == nil {
		return
	}
	if err := s.sessions.Revoke(ctx, sess.ID); err != nil {
		return
	}
	s.killAccessToken(ctx, sess.AccessTokenID)
	s.auditLog.LogEvent(ctx, sess.TenantID, sess.UserID, "sign_out", "session", sess.ID)
}

// ListSessions returns the calling user's sessions within the tenant bound
// to ctx. The session matching the caller's access token is flagged current.
func (s *AuthService) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	userID, ok := tenant.UserID(ctx)
	if !ok {
		return nil, ErrSessionNotFound
	}
	currentID, _ := tenant.SessionID(ctx)
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, tenant.ErrMissingTenantContext) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	out := make([]SessionSummary, 0, len(list))
	for _, sess := range list {
		out = append(out, SessionSummary{
			ID:          sess.ID,
			Device:      sess.DeviceFingerprint,
			IPAddress:   sess.IPAddress,
			CreatedAt:   sess.CreatedAt,
			LastSeenAt:  sess.LastSeenAt,
			IsActive:    sess.IsActive,
			IsCurrent:   sess.ID == currentID,
			AnomalyFlag: sess.AnomalyFlag,
		})
	}
	return out, nil
}

// RevokeSession revokes one session belonging to the calling user.
// Idempotent: revoking an already-inactive session succeeds.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) error {
	userID, ok := tenant.UserID(ctx)
	if !ok {
		return ErrSessionNotFound
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, tenant.ErrMissingTenantContext) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if sess.UserID != userID && !tenant.HasRole(ctx, "admin") {
		return ErrSessionNotFound
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.killAccessToken(ctx, sess.AccessTokenID)
	s.auditLog.LogEvent(ctx, sess.TenantID, userID, "revoke", "session", sessionID)
	return nil
}

// RevokeAllSessions revokes every session for userID across all families.
// Self-service for the calling user; "admin" role required for anyone else.
// Used after password change or suspected compromise.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) error {
	callerID, ok := tenant.UserID(ctx)
	if !ok {
		return ErrSessionNotFound
	}
	if userID == "" {
		userID = callerID
	}
	if userID != callerID && !tenant.HasRole(ctx, "admin") {
		return ErrSessionNotFound
	}
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, tenant.ErrMissingTenantContext) {
			return ErrSessionNotFound
		}
		return err
	}
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	for _, sess := range list {
		if sess.IsActive {
			s.killAccessToken(ctx, sess.AccessTokenID)
		}
	}
	tenantID, _ := tenant.FromContext(ctx)
	s.auditLog.LogEvent(ctx, tenantID, callerID, "revoke_all", "session", userID)
	return nil
}

// ChangePassword verifies the current password, installs the new hash, and
// revokes every session for the caller.
func (s *AuthService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	userID, ok := tenant.UserID(ctx)
	if !ok {
		return ErrInvalidCredentials
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || !user.CanAuthenticate() {
		return ErrInvalidCredentials
	}
	ident, err := s.identities.GetByUserAndProvider(ctx, userID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return err
	}
	if ident == nil || ident.PasswordHash == "" {
		return ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if err := s.identities.UpdatePasswordHash(ctx, ident.ID, hashed); err != nil {
		return err
	}
	s.auditLog.LogEvent(ctx, user.TenantID, userID, "change_password", "identity", "")
	return s.RevokeAllSessions(ctx, userID)
}

// createSession mints a new session at sequence zero with a fresh refresh
// family, persists it, and returns the token pair. One transactional
// boundary: if the session row fails to persist, no tokens escape.
func (s *AuthService) createSession(ctx context.Context, user *userdomain.User, meta mfa.SignInMeta) (*Tokens, error) {
	sessionID := uuid.New().String()
	familyID := uuid.New().String()
	now := time.Now().UTC()

	refreshToken, _, _, err := s.tokens.MintRefresh(sessionID, familyID, 0, user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}
	accessToken, accessJTI, accessExp, err := s.tokens.MintAccess(user.ID, user.TenantID, sessionID, user.Roles)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		ID:                sessionID,
		UserID:            user.ID,
		TenantID:          user.TenantID,
		AccessTokenID:     accessJTI,
		RefreshFamilyID:   familyID,
		RefreshSequence:   0,
		RefreshTokenHash:  security.HashRefreshToken(refreshToken),
		DeviceFingerprint: meta.DeviceFingerprint,
		IPAddress:         meta.IPAddress,
		UserAgent:         meta.UserAgent,
		IsActive:          true,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.auditLog.LogEvent(ctx, user.TenantID, user.ID, "sign_in", "session", sessionID)
	return &Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		UserID:       user.ID,
		TenantID:     user.TenantID,
		SessionID:    sessionID,
	}, nil
}

func (s *AuthService) killAccessToken(ctx context.Context, jti string) {
	if jti == "" {
		return
	}
	_ = s.denylist.Revoke(ctx, jti, s.tokens.AccessTTL())
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		default:
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
