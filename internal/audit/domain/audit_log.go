package domain

import "time"

// AuditLog is one immutable audit entry. Rows are append-only; the expiry
// sweep and revocation paths depend on session history staying queryable.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
