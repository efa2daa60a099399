package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"janua/engine/internal/identity"
	identitydomain "janua/engine/internal/identity/domain"
	"janua/engine/internal/mfa"
	mfadomain "janua/engine/internal/mfa/domain"
	mfastore "janua/engine/internal/mfa/store"
	"janua/engine/internal/rotation"
	"janua/engine/internal/security"
	"janua/engine/internal/securityevent"
	sessiondomain "janua/engine/internal/session/domain"
	sessionrepo "janua/engine/internal/session/repository"
	"janua/engine/internal/tenant"
	userdomain "janua/engine/internal/user/domain"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

type memUserRepo struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok || u.TenantID != tenantID {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email && u.TenantID == tenantID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *memUserRepo) UpdateStatus(ctx context.Context, id string, status userdomain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.Status = status
	}
	return nil
}

func (r *memUserRepo) UpdateMFA(ctx context.Context, id string, enabled bool, totpSecret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.MFAEnabled = enabled
		u.TOTPSecret = totpSecret
	}
	return nil
}

type memIdentityRepo struct {
	mu sync.Mutex
	m  map[string]*identitydomain.Identity
}

func (r *memIdentityRepo) GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.UserID == userID && i.Provider == provider && i.TenantID == tenantID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memIdentityRepo) GetByProviderSubject(ctx context.Context, provider identitydomain.IdentityProvider, providerID string) (*identitydomain.Identity, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.m {
		if i.Provider == provider && i.ProviderID == providerID && i.TenantID == tenantID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memIdentityRepo) Create(ctx context.Context, i *identitydomain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *i
	r.m[i.ID] = &cp
	return nil
}

func (r *memIdentityRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.m[id]; ok {
		i.PasswordHash = passwordHash
	}
	return nil
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) ListByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.UserID == userID && s.TenantID == tenantID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.TenantID == tenantID {
		r.deactivate(s, "")
	}
	return nil
}

func (r *memSessionRepo) RevokeFamily(ctx context.Context, familyID, anomaly string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.RefreshFamilyID == familyID && s.TenantID == tenantID {
			r.deactivate(s, anomaly)
		}
	}
	return nil
}

func (r *memSessionRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.m {
		if s.UserID == userID && s.TenantID == tenantID {
			r.deactivate(s, "")
		}
	}
	return nil
}

func (r *memSessionRepo) RotateRefresh(ctx context.Context, sessionID string, expectedSeq int64, rot sessionrepo.Rotation) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[sessionID]
	if !ok || s.TenantID != tenantID || !s.IsActive || s.RefreshSequence != expectedSeq {
		return sessionrepo.ErrSequenceConflict
	}
	s.RefreshSequence = rot.NewSequence
	s.RefreshTokenHash = rot.RefreshTokenHash
	s.AccessTokenID = rot.AccessTokenID
	last := rot.LastSeenAt
	s.LastSeenAt = &last
	return nil
}

func (r *memSessionRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.m {
		if s.IsActive && s.Expired(now) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) deactivate(s *sessiondomain.Session, anomaly string) {
	if s.IsActive {
		s.IsActive = false
		now := time.Now().UTC()
		s.RevokedAt = &now
	}
	if anomaly != "" {
		s.AnomalyFlag = anomaly
	}
}

func (r *memSessionRepo) get(id string) *sessiondomain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.m[id]
	return &cp
}

type memBackupRepo struct {
	mu    sync.Mutex
	codes map[string]bool // userID+":"+hash -> consumed
}

func (r *memBackupRepo) Insert(ctx context.Context, userID string, codeHashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range codeHashes {
		r.codes[userID+":"+h] = false
	}
	return nil
}

func (r *memBackupRepo) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := userID + ":" + codeHash
	consumed, ok := r.codes[key]
	if !ok || consumed {
		return false, nil
	}
	r.codes[key] = true
	return true, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []securityevent.Event
}

func (e *recordingEmitter) Emit(ctx context.Context, ev securityevent.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) kinds() []securityevent.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]securityevent.Kind, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	svc      *AuthService
	users    *memUserRepo
	idents   *memIdentityRepo
	sessions *memSessionRepo
	backups  *memBackupRepo
	emitter  *recordingEmitter
	tokens   *security.TokenProvider
	hasher   *security.Hasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys, err := security.NewKeyring("test", key, nil)
	if err != nil {
		t.Fatalf("keyring: %v", err)
	}
	tokens := security.NewTokenProvider(keys, "janua-auth", "janua-api", 15*time.Minute, 720*time.Hour)
	hasher := security.NewHasher(4)

	users := &memUserRepo{byID: make(map[string]*userdomain.User)}
	idents := &memIdentityRepo{m: make(map[string]*identitydomain.Identity)}
	sessions := newMemSessionRepo()
	backups := &memBackupRepo{codes: make(map[string]bool)}
	emitter := &recordingEmitter{}

	engine := mfa.NewEngine(mfastore.NewMemoryStore(), backups, nil, time.Minute, 5)
	tracker := rotation.NewTracker(tokens, sessions, emitter)
	verifier := identity.NewPasswordVerifier(users, idents, hasher)

	svc := NewAuthService(users, idents, sessions, verifier, engine, tracker, tokens, hasher, nil, nil)
	return &fixture{
		svc: svc, users: users, idents: idents, sessions: sessions,
		backups: backups, emitter: emitter, tokens: tokens, hasher: hasher,
	}
}

func (f *fixture) addUser(t *testing.T, tenantID, email, password string, mfaEnabled bool) *userdomain.User {
	t.Helper()
	hash, err := f.hasher.Hash([]byte(password))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:         "user-" + email,
		TenantID:   tenantID,
		Email:      email,
		Status:     userdomain.UserStatusActive,
		MFAEnabled: mfaEnabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if mfaEnabled {
		u.TOTPSecret = testTOTPSecret
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	ident := &identitydomain.Identity{
		ID:           "ident-" + email,
		UserID:       u.ID,
		TenantID:     tenantID,
		Provider:     identitydomain.IdentityProviderLocal,
		ProviderID:   email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := f.idents.Create(context.Background(), ident); err != nil {
		t.Fatalf("create identity: %v", err)
	}
	return u
}

func tenantCtx(tenantID string) context.Context {
	return tenant.WithTenant(context.Background(), tenantID)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestSignInIssuesTokens(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if res.MFARequired || res.Tokens == nil {
		t.Fatalf("expected tokens, got %+v", res)
	}

	claims, err := f.tokens.VerifyAccess(res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.TenantID != "t1" || claims.SessionID != res.Tokens.SessionID {
		t.Fatalf("claims = %+v", claims)
	}

	sess := f.sessions.get(res.Tokens.SessionID)
	if !sess.IsActive || sess.RefreshSequence != 0 || sess.RefreshFamilyID == "" {
		t.Fatalf("session = %+v", sess)
	}
	if sess.RefreshTokenHash != security.HashRefreshToken(res.Tokens.RefreshToken) {
		t.Fatal("stored refresh hash does not match issued token")
	}
}

func TestSignInWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	if _, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "wrong", mfa.SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	// Unknown email fails identically.
	if _, err := f.svc.SignIn(tenantCtx("t1"), "nobody@example.com", "wrong", mfa.SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignInWrongTenant(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	if _, err := f.svc.SignIn(tenantCtx("t2"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.svc.SignIn(context.Background(), "a@example.com", "correct-horse-battery", mfa.SignInMeta{}); err == nil {
		t.Fatal("expected error without tenant context")
	}
}

func TestSignInMFAFlow(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", true)

	meta := mfa.SignInMeta{DeviceFingerprint: "dev-1", IPAddress: "10.0.0.1", UserAgent: "cli"}
	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", meta)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if !res.MFARequired || res.ChallengeID == "" || res.Tokens != nil {
		t.Fatalf("expected pending challenge, got %+v", res)
	}

	code, err := totp.GenerateCode(testTOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("totp: %v", err)
	}
	tokens, err := f.svc.VerifyMFA(context.Background(), res.ChallengeID, code)
	if err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}
	sess := f.sessions.get(tokens.SessionID)
	if sess.DeviceFingerprint != "dev-1" || sess.IPAddress != "10.0.0.1" {
		t.Fatalf("session lost sign-in attribution: %+v", sess)
	}
}

func TestVerifyMFAWrongCode(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", true)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := f.svc.VerifyMFA(context.Background(), res.ChallengeID, "000000"); !errors.Is(err, ErrMFAChallengeFailed) {
		t.Fatalf("err = %v, want ErrMFAChallengeFailed", err)
	}
	// The failure did not consume the challenge; the right code still works.
	code, _ := totp.GenerateCode(testTOTPSecret, time.Now())
	if _, err := f.svc.VerifyMFA(context.Background(), res.ChallengeID, code); err != nil {
		t.Fatalf("VerifyMFA after one failure: %v", err)
	}
}

func TestRefreshRotatesSequence(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	first := res.Tokens

	second, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	sess := f.sessions.get(first.SessionID)
	if sess.RefreshSequence != 1 {
		t.Fatalf("sequence = %d, want 1", sess.RefreshSequence)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	third, err := f.svc.Refresh(context.Background(), second.RefreshToken)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if f.sessions.get(first.SessionID).RefreshSequence != 2 {
		t.Fatal("sequence did not advance to 2")
	}
	if _, err := f.tokens.VerifyAccess(third.AccessToken); err != nil {
		t.Fatalf("rotated access token does not verify: %v", err)
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	first := res.Tokens

	second, err := f.svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// Replaying the superseded token is theft detection.
	if _, err := f.svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("err = %v, want ErrTokenReuseDetected", err)
	}

	sess := f.sessions.get(first.SessionID)
	if sess.IsActive {
		t.Fatal("session still active after reuse")
	}
	if sess.AnomalyFlag != sessiondomain.AnomalyTokenReuse {
		t.Fatalf("anomaly flag = %q", sess.AnomalyFlag)
	}

	waitFor(t, func() bool {
		for _, k := range f.emitter.kinds() {
			if k == securityevent.KindTokenReuse {
				return true
			}
		}
		return false
	})

	// Collateral damage: the legitimately-held newest token is dead too.
	if _, err := f.svc.Refresh(context.Background(), second.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	raw := res.Tokens.RefreshToken

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Refresh(context.Background(), raw)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins > 1 {
		t.Fatalf("%d concurrent refreshes won, want at most 1", wins)
	}
}

func TestSignOutAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	f.svc.SignOut(context.Background(), res.Tokens.RefreshToken)
	if f.sessions.get(res.Tokens.SessionID).IsActive {
		t.Fatal("session still active after sign-out")
	}

	// Repeats and garbage are silently absorbed.
	f.svc.SignOut(context.Background(), res.Tokens.RefreshToken)
	f.svc.SignOut(context.Background(), "not-a-token")

	if _, err := f.svc.Refresh(context.Background(), res.Tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("refresh after sign-out: err = %v, want ErrSessionNotFound", err)
	}
}

func TestListSessionsMarksCurrent(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res1, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{DeviceFingerprint: "laptop"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	res2, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{DeviceFingerprint: "phone"})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	ctx := tenant.WithIdentity(context.Background(), "t1", u.ID, res2.Tokens.SessionID, nil)
	list, err := f.svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	for _, s := range list {
		want := s.ID == res2.Tokens.SessionID
		if s.IsCurrent != want {
			t.Fatalf("session %s IsCurrent = %v", s.ID, s.IsCurrent)
		}
	}
	_ = res1
}

func TestRevokeSessionOwnershipCheck(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)
	intruder := f.addUser(t, "t1", "b@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	intruderCtx := tenant.WithIdentity(context.Background(), "t1", intruder.ID, "other-session", nil)
	if err := f.svc.RevokeSession(intruderCtx, res.Tokens.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if !f.sessions.get(res.Tokens.SessionID).IsActive {
		t.Fatal("session revoked by non-owner")
	}

	// Cross-tenant lookups never acknowledge the session exists.
	otherTenantCtx := tenant.WithIdentity(context.Background(), "t2", "someone", "s", nil)
	if err := f.svc.RevokeSession(otherTenantCtx, res.Tokens.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "t1", "a@example.com", "Correct-horse1battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "Correct-horse1battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	ctx := tenant.WithIdentity(context.Background(), "t1", u.ID, res.Tokens.SessionID, nil)
	if err := f.svc.ChangePassword(ctx, "wrong", "New-password1!aa"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if err := f.svc.ChangePassword(ctx, "Correct-horse1battery", "short"); err == nil {
		t.Fatal("weak password accepted")
	}
	if err := f.svc.ChangePassword(ctx, "Correct-horse1battery", "New-password1!aa"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if f.sessions.get(res.Tokens.SessionID).IsActive {
		t.Fatal("session survived password change")
	}
	if _, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "Correct-horse1battery", mfa.SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password still accepted")
	}
	if _, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "New-password1!aa", mfa.SignInMeta{}); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := tenantCtx("t1")

	if _, err := f.svc.Register(ctx, "a@example.com", "weak", "A"); err == nil {
		t.Fatal("weak password accepted")
	}
	if _, err := f.svc.Register(ctx, "not-an-email", "Str0ng-passw0rd!", "A"); err == nil {
		t.Fatal("malformed email accepted")
	}

	u, err := f.svc.Register(ctx, "A@Example.com", "Str0ng-passw0rd!", "A")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "a@example.com" {
		t.Fatalf("email not normalized: %q", u.Email)
	}
	if _, err := f.svc.Register(ctx, "a@example.com", "Str0ng-passw0rd!", "A"); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrEmailAlreadyRegistered", err)
	}

	if _, err := f.svc.SignIn(ctx, "a@example.com", "Str0ng-passw0rd!", mfa.SignInMeta{}); err != nil {
		t.Fatalf("sign-in after register: %v", err)
	}
}

func TestRegisterUnverifiedWhenVerificationRequired(t *testing.T) {
	f := newFixture(t)
	f.svc.RequireVerifiedEmail = true
	ctx := tenantCtx("t1")

	u, err := f.svc.Register(ctx, "new@example.com", "Str0ng-passw0rd!", "New")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Status != userdomain.UserStatusUnverified {
		t.Fatalf("status = %q, want unverified", u.Status)
	}
	if _, err := f.svc.SignIn(ctx, "new@example.com", "Str0ng-passw0rd!", mfa.SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials for unverified user", err)
	}
}

func TestSignInExternal(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignInExternal(context.Background(), identity.FromUser(u), mfa.SignInMeta{DeviceFingerprint: "sso"})
	if err != nil {
		t.Fatalf("SignInExternal: %v", err)
	}
	if res.Tokens == nil {
		t.Fatalf("expected tokens, got %+v", res)
	}
	if _, err := f.svc.SignInExternal(context.Background(), nil, mfa.SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSuspendedUserCannotSignIn(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)
	if err := f.users.UpdateStatus(context.Background(), u.ID, userdomain.UserStatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	if _, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestMFABackupCodeSingleUse(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "t1", "a@example.com", "correct-horse-battery", true)
	u.TOTPSecret = ""
	if err := f.users.UpdateMFA(context.Background(), u.ID, true, ""); err != nil {
		t.Fatalf("update mfa: %v", err)
	}
	code := "rescue-code-1"
	if err := f.backups.Insert(context.Background(), u.ID, []string{mfa.HashOTP(code)}); err != nil {
		t.Fatalf("insert codes: %v", err)
	}

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if len(res.Methods) == 0 || res.Methods[0] != mfadomain.MethodBackupCode {
		t.Fatalf("methods = %v", res.Methods)
	}
	if _, err := f.svc.VerifyMFA(context.Background(), res.ChallengeID, code); err != nil {
		t.Fatalf("VerifyMFA: %v", err)
	}

	// The code is spent; a second sign-in cannot reuse it.
	res2, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := f.svc.VerifyMFA(context.Background(), res2.ChallengeID, code); !errors.Is(err, ErrMFAChallengeFailed) {
		t.Fatalf("err = %v, want ErrMFAChallengeFailed", err)
	}
}

func TestForgedRefreshSequenceRejected(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "t1", "a@example.com", "correct-horse-battery", false)

	res, err := f.svc.SignIn(tenantCtx("t1"), "a@example.com", "correct-horse-battery", mfa.SignInMeta{})
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	sess := f.sessions.get(res.Tokens.SessionID)

	// A token claiming a sequence ahead of storage is forged, not reuse:
	// the session must survive untouched.
	forged, _, _, err := f.tokens.MintRefresh(sess.ID, sess.RefreshFamilyID, 5, u.ID, "t1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if !f.sessions.get(sess.ID).IsActive {
		t.Fatal("forged token deactivated the session")
	}
	if len(f.emitter.kinds()) != 0 {
		t.Fatalf("unexpected security events: %v", f.emitter.kinds())
	}
}
