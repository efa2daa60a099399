package domain

import "time"

// IdentityProvider names the credential source backing an identity.
type IdentityProvider string

const (
	IdentityProviderLocal     IdentityProvider = "local"
	IdentityProviderOAuth     IdentityProvider = "oauth"
	IdentityProviderSAML      IdentityProvider = "saml"
	IdentityProviderPasskey   IdentityProvider = "passkey"
	IdentityProviderMagicLink IdentityProvider = "magic_link"
)

// Identity links a user to one credential source. Local identities carry a
// bcrypt password hash; external identities carry the provider's subject id.
type Identity struct {
	ID           string
	UserID       string
	TenantID     string
	Provider     IdentityProvider
	ProviderID   string // email for local, IdP subject for external
	PasswordHash string // only for local
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
