package mfa

import (
	"github.com/pquerna/otp/totp"
)

// ValidateTOTP checks a time-based code against the user's enrolled base32
// secret. Uses the standard 30s step with the library's default skew of one
// step in either direction.
func ValidateTOTP(code, secret string) bool {
	if code == "" || secret == "" {
		return false
	}
	return totp.Validate(code, secret)
}
