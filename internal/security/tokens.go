package security

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails
	// signature/issuer/audience checks. Deliberately indistinct: callers get no
	// detail about which check failed.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token. Short-lived, stateless;
// tenant_id and roles are authoritative for request scoping.
type AccessClaims struct {
	jwt.RegisteredClaims
	TenantID  string   `json:"tenant_id"`
	SessionID string   `json:"session_id"`
	Roles     []string `json:"roles,omitempty"`
	TokenUse  string   `json:"token_use"`
}

// RefreshClaims holds JWT claims for the refresh token. family_id and seq bind
// the token to one point in the session's rotation lineage; seq must equal the
// stored refresh_sequence exactly at verification time.
type RefreshClaims struct {
	jwt.RegisteredClaims
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	FamilyID  string `json:"family_id"`
	Sequence  int64  `json:"seq"`
	TokenUse  string `json:"token_use"`
}

// token_use values. Verification checks them so the two token kinds can
// never stand in for each other.
const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// TokenProvider mints and validates JWT access and refresh tokens against a
// Keyring (RS256 or ES256). The kid header selects the verification key, so
// tokens remain valid across key rotation.
type TokenProvider struct {
	keys       *Keyring
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider signing with the keyring's active key.
// issuer and audience are set on claims and validated on every verify.
func NewTokenProvider(keys *Keyring, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		keys:       keys,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL returns the configured access-token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// MintAccess issues a short-lived access JWT for the given user, tenant, and
// session. Returns the signed token, its jti, and expiry. Fails with
// ErrKeyUnavailable when the ring has no active signing key.
func (p *TokenProvider) MintAccess(userID, tenantID, sessionID string, roles []string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = NewJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:  tenantID,
		SessionID: sessionID,
		Roles:     roles,
		TokenUse:  useAccess,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

// MintRefresh issues a refresh JWT bound to (familyID, sequence). The raw
// token is returned to the caller exactly once and is never logged; the
// session row stores only its hash.
func (p *TokenProvider) MintRefresh(sessionID, familyID string, sequence int64, userID, tenantID string) (token, jti string, expiresAt time.Time, err error) {
	jti, err = NewJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:  tenantID,
		SessionID: sessionID,
		FamilyID:  familyID,
		Sequence:  sequence,
		TokenUse:  useRefresh,
	}
	token, err = p.sign(claims)
	return token, jti, expiresAt, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	kid, signer, err := p.keys.Signer()
	if err != nil {
		return "", err
	}
	var method jwt.SigningMethod
	switch signer.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrKeyUnavailable
	}
	t := jwt.NewWithClaims(method, claims)
	t.Header["kid"] = kid
	return t.SignedString(signer)
}

func (p *TokenProvider) keyfunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
	default:
		return nil, ErrInvalidToken
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, ErrInvalidToken
	}
	return p.keys.Verifier(kid)
}

// VerifyAccess parses and validates an access token (signature, exp, iss, aud).
func (p *TokenProvider) VerifyAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, p.keyfunc,
		jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.TokenUse != useAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token (signature, exp, iss, aud).
func (p *TokenProvider) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, p.keyfunc,
		jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid || claims.TokenUse != useRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewJTI returns a 128-bit random token id, hex-encoded.
func NewJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
