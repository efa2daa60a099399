package domain

import "time"

// Method is the second factor backing a challenge.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodSMS        Method = "sms"
	MethodBackupCode Method = "backup_code"
)

// State is the challenge lifecycle state. Transitions: CREATED -> CONSUMED on
// success, CREATED -> INVALID on expiry or attempt cap. CONSUMED and INVALID
// are terminal; a new challenge must be issued instead.
type State string

const (
	StateCreated  State = "created"
	StateConsumed State = "consumed"
	StateInvalid  State = "invalid"
)

// Challenge is the ephemeral record gating token issuance pending a second
// factor. It carries enough sign-in context to promote into a Session once
// consumed. Stored in a short-TTL keyed store, so expiry needs no sweep job.
type Challenge struct {
	ID                string
	UserID            string
	TenantID          string
	Method            Method
	CodeHash          string // for SMS: sha256 of the delivered code; empty for totp/backup
	State             State
	Attempts          int64
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Expired reports whether the challenge is past its expiry at the given instant.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
