package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"janua/engine/internal/identity/domain"
	"janua/engine/internal/tenant"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `id, user_id, tenant_id, provider, provider_id, password_hash, created_at, updated_at`

// GetByUserAndProvider returns the identity for (userID, provider) within the
// tenant bound to ctx, or nil if not found.
func (r *PostgresRepository) GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE user_id = $1 AND provider = $2 AND tenant_id = $3`,
		userID, string(provider), tenantID)
	return scanIdentity(row)
}

// GetByProviderSubject returns the identity for an external provider subject
// within the tenant bound to ctx, or nil if not found.
func (r *PostgresRepository) GetByProviderSubject(ctx context.Context, provider domain.IdentityProvider, providerID string) (*domain.Identity, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE provider = $1 AND provider_id = $2 AND tenant_id = $3`,
		string(provider), providerID, tenantID)
	return scanIdentity(row)
}

// Create persists the identity. The identity must have ID and TenantID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	if i.TenantID == "" {
		return tenant.ErrMissingTenantContext
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		i.ID, i.UserID, i.TenantID, string(i.Provider), i.ProviderID,
		sql.NullString{String: i.PasswordHash, Valid: i.PasswordHash != ""},
		i.CreatedAt, i.UpdatedAt)
	return err
}

// UpdatePasswordHash replaces the stored password hash for the identity.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE identities SET password_hash = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4`,
		passwordHash, time.Now().UTC(), id, tenantID)
	return err
}

func scanIdentity(row *sql.Row) (*domain.Identity, error) {
	var i domain.Identity
	var provider string
	var passwordHash sql.NullString
	err := row.Scan(&i.ID, &i.UserID, &i.TenantID, &provider, &i.ProviderID,
		&passwordHash, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	i.Provider = domain.IdentityProvider(provider)
	i.PasswordHash = passwordHash.String
	return &i, nil
}
