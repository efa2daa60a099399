package domain

import "time"

// Session represents one authenticated device/browser lineage. Exactly one
// active refresh family belongs to a session; RefreshSequence strictly
// increases on every successful refresh and is never reused.
type Session struct {
	ID                string
	UserID            string
	TenantID          string
	AccessTokenID     string // jti of the most recently minted access token
	RefreshFamilyID   string
	RefreshSequence   int64
	RefreshTokenHash  string // SHA-256 of the current refresh token; never the raw token
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	IsActive          bool
	AnomalyFlag       string // set when theft detection fired for this row; empty otherwise
	CreatedAt         time.Time
	ExpiresAt         time.Time
	LastSeenAt        *time.Time
	RevokedAt         *time.Time
}

// AnomalyTokenReuse marks sessions revoked by refresh-token reuse detection.
const AnomalyTokenReuse = "token_reuse"

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
