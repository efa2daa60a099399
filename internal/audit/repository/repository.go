package repository

import (
	"context"

	"janua/engine/internal/audit/domain"
)

// Repository defines persistence for audit logs. Write-only from the
// engine's perspective; querying belongs to the audit collaborator.
type Repository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}
