// Package identity holds credential identities and the primary-factor
// verifier. Protocol adapters (OAuth, SAML, OIDC, WebAuthn) live outside the
// engine; they hand over a VerifiedIdentity and the engine takes it from there.
package identity

import (
	"context"
	"errors"
	"strings"

	"janua/engine/internal/identity/domain"
	identityrepo "janua/engine/internal/identity/repository"
	"janua/engine/internal/security"
	userdomain "janua/engine/internal/user/domain"
	userrepo "janua/engine/internal/user/repository"
)

// ErrInvalidCredentials is returned for any primary-factor failure. It never
// distinguishes "no such user" from "wrong password".
var ErrInvalidCredentials = errors.New("invalid credentials")

// VerifiedIdentity is the outcome of a successful primary-factor check.
type VerifiedIdentity struct {
	UserID     string
	TenantID   string
	Roles      []string
	MFAEnabled bool
}

// Verifier validates a primary factor and yields a verified user identity.
type Verifier interface {
	VerifyPrimary(ctx context.Context, email, password string) (*VerifiedIdentity, error)
}

// PasswordVerifier verifies local email/password identities against stored
// bcrypt hashes.
type PasswordVerifier struct {
	users      userrepo.Repository
	identities identityrepo.Repository
	hasher     *security.Hasher
}

// NewPasswordVerifier returns a Verifier backed by the user and identity repositories.
func NewPasswordVerifier(users userrepo.Repository, identities identityrepo.Repository, hasher *security.Hasher) *PasswordVerifier {
	return &PasswordVerifier{users: users, identities: identities, hasher: hasher}
}

// VerifyPrimary checks email/password within the tenant bound to ctx. Any
// failure collapses to ErrInvalidCredentials.
func (v *PasswordVerifier) VerifyPrimary(ctx context.Context, email, password string) (*VerifiedIdentity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.CanAuthenticate() {
		return nil, ErrInvalidCredentials
	}
	ident, err := v.identities.GetByUserAndProvider(ctx, user.ID, domain.IdentityProviderLocal)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := v.hasher.Compare(ident.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &VerifiedIdentity{
		UserID:     user.ID,
		TenantID:   user.TenantID,
		Roles:      user.Roles,
		MFAEnabled: user.MFAEnabled,
	}, nil
}

// FromUser builds a VerifiedIdentity from an already-authenticated user, used
// when an external adapter (OAuth/SAML/OIDC/WebAuthn) has done the primary check.
func FromUser(u *userdomain.User) *VerifiedIdentity {
	return &VerifiedIdentity{
		UserID:     u.ID,
		TenantID:   u.TenantID,
		Roles:      u.Roles,
		MFAEnabled: u.MFAEnabled,
	}
}
