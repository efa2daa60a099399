package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInvalidKey is returned when PEM or key type is invalid.
var ErrInvalidKey = errors.New("invalid key")

// ErrKeyUnavailable is returned when signing is requested but no active
// signing key is loaded. Operational failure; callers must not fall back
// to an unsigned or shared-secret scheme.
var ErrKeyUnavailable = errors.New("signing key unavailable")

// ErrUnknownKeyID is returned when a token carries a kid that is not in the ring.
var ErrUnknownKeyID = errors.New("unknown key id")

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (RSA or ECDSA). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// KeyAlg returns "RS256" for RSA and "ES256" for ECDSA; empty otherwise.
func KeyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	default:
		return ""
	}
}

// Keyring holds the active signing key plus prior verification-only keys,
// indexed by kid. Signing always uses the active key; verification accepts
// any key in the ring, so tokens minted before a rotation stay verifiable
// for the overlap window.
//
// Read-mostly: verification takes an RLock, Rotate takes the write lock.
type Keyring struct {
	mu        sync.RWMutex
	activeKid string
	signer    crypto.Signer
	verifiers map[string]crypto.PublicKey
}

// NewKeyring returns a Keyring signing with signer under kid. Prior key
// generations may be supplied in verifyOnly. signer may be nil for a
// verify-only ring (services that validate but never mint).
func NewKeyring(kid string, signer crypto.Signer, verifyOnly map[string]crypto.PublicKey) (*Keyring, error) {
	kid = strings.TrimSpace(kid)
	verifiers := make(map[string]crypto.PublicKey, len(verifyOnly)+1)
	for k, pub := range verifyOnly {
		k = strings.TrimSpace(k)
		if k == "" || pub == nil {
			return nil, ErrInvalidKey
		}
		verifiers[k] = pub
	}
	if signer != nil {
		if kid == "" {
			return nil, ErrInvalidKey
		}
		verifiers[kid] = signer.Public()
	}
	if len(verifiers) == 0 {
		return nil, ErrInvalidKey
	}
	return &Keyring{activeKid: kid, signer: signer, verifiers: verifiers}, nil
}

// Signer returns the active signing key and its kid, or ErrKeyUnavailable
// when the ring is verify-only.
func (r *Keyring) Signer() (string, crypto.Signer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.signer == nil {
		return "", nil, ErrKeyUnavailable
	}
	return r.activeKid, r.signer, nil
}

// Verifier returns the public key for kid, or ErrUnknownKeyID.
func (r *Keyring) Verifier(kid string) (crypto.PublicKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.verifiers[kid]
	if !ok {
		return nil, ErrUnknownKeyID
	}
	return pub, nil
}

// Rotate installs signer as the new active key under kid. The previous
// active key stays in the ring verify-only.
func (r *Keyring) Rotate(kid string, signer crypto.Signer) error {
	kid = strings.TrimSpace(kid)
	if kid == "" || signer == nil {
		return ErrInvalidKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifiers[kid] = signer.Public()
	r.activeKid = kid
	r.signer = signer
	return nil
}

// Retire removes kid from the ring so tokens signed with it no longer
// verify. The active signing key cannot be retired.
func (r *Keyring) Retire(kid string) error {
	kid = strings.TrimSpace(kid)
	r.mu.Lock()
	defer r.mu.Unlock()
	if kid == r.activeKid {
		return ErrInvalidKey
	}
	delete(r.verifiers, kid)
	return nil
}
