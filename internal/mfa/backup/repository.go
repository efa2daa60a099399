// Package backup persists single-use MFA backup codes. Only code hashes are
// stored; consumption is a conditional update so a code can be accepted at
// most once, even under concurrent verification calls.
package backup

import "context"

// Repository defines persistence for backup codes.
type Repository interface {
	// Insert stores the hashed codes for the user, replacing any prior set.
	Insert(ctx context.Context, userID string, codeHashes []string) error
	// Consume marks the code matching codeHash as consumed and reports
	// whether this call performed the consumption. Already-consumed and
	// unknown codes return false. Consumption is permanent even when the
	// surrounding verification later fails for unrelated reasons.
	Consume(ctx context.Context, userID, codeHash string) (bool, error)
}
