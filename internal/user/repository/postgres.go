package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"janua/engine/internal/tenant"
	"janua/engine/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, tenant_id, email, name, status, roles, mfa_enabled, totp_secret, phone, created_at, updated_at`

// GetByID returns the user for id within the tenant bound to ctx, or nil if
// not found. Fails with tenant.ErrMissingTenantContext when ctx carries no tenant.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return scanUser(row)
}

// GetByEmail returns the user for email within the tenant bound to ctx, or nil.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND tenant_id = $2`, email, tenantID)
	return scanUser(row)
}

// Create persists the user. The user must have ID and TenantID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if u.TenantID == "" {
		return tenant.ErrMissingTenantContext
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		u.ID, u.TenantID, u.Email, u.Name, string(u.Status), joinRoles(u.Roles),
		u.MFAEnabled, nullString(u.TOTPSecret), nullString(u.Phone), u.CreatedAt, u.UpdatedAt)
	return err
}

// UpdateStatus sets the user's status within the tenant bound to ctx.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.UserStatus) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = $2 WHERE id = $3 AND tenant_id = $4`,
		string(status), time.Now().UTC(), id, tenantID)
	return err
}

// UpdateMFA sets the user's MFA enrollment state within the tenant bound to ctx.
func (r *PostgresRepository) UpdateMFA(ctx context.Context, id string, enabled bool, totpSecret string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled = $1, totp_secret = $2, updated_at = $3 WHERE id = $4 AND tenant_id = $5`,
		enabled, nullString(totpSecret), time.Now().UTC(), id, tenantID)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var status, roles string
	var totpSecret, phone sql.NullString
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &status, &roles,
		&u.MFAEnabled, &totpSecret, &phone, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	u.Roles = splitRoles(roles)
	u.TOTPSecret = totpSecret.String
	u.Phone = phone.String
	return &u, nil
}

// Roles are stored as a comma-joined text column; role names never contain commas.
func joinRoles(roles []string) string { return strings.Join(roles, ",") }

func splitRoles(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
