package domain

import (
	"errors"
	"time"
)

// User is the core user entity. Users are never hard-deleted while sessions
// reference them; status transitions to suspended instead.
type User struct {
	ID            string
	TenantID      string
	Email         string
	Name          string
	Status        UserStatus
	Roles         []string
	MFAEnabled    bool
	TOTPSecret    string // base32 secret; empty when TOTP not enrolled
	Phone         string // optional; used for SMS MFA delivery
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type UserStatus string

const (
	UserStatusActive     UserStatus = "active"
	UserStatusSuspended  UserStatus = "suspended"
	UserStatusUnverified UserStatus = "unverified"
)

// Validate validates the user for persistence. Returns an error describing
// the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// CanAuthenticate reports whether the user may complete a sign-in.
func (u *User) CanAuthenticate() bool {
	return u != nil && u.Status == UserStatusActive
}
