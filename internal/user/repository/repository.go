package repository

import (
	"context"

	"janua/engine/internal/user/domain"
)

// Repository defines persistence for users. All reads are scoped by the
// tenant bound to ctx; implementations fail closed when no tenant is set.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error
	UpdateMFA(ctx context.Context, id string, enabled bool, totpSecret string) error
}
