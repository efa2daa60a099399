package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"janua/engine/internal/session/domain"
	"janua/engine/internal/tenant"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, tenant_id, access_token_id, refresh_family_id, refresh_sequence,
	refresh_token_hash, device_fingerprint, ip_address, user_agent, is_active, anomaly_flag,
	created_at, expires_at, last_seen_at, revoked_at`

// Create persists the session. The session must have ID and TenantID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.TenantID == "" {
		return tenant.ErrMissingTenantContext
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		s.ID, s.UserID, s.TenantID, s.AccessTokenID, s.RefreshFamilyID, s.RefreshSequence,
		s.RefreshTokenHash, nullString(s.DeviceFingerprint), nullString(s.IPAddress),
		nullString(s.UserAgent), s.IsActive, nullString(s.AnomalyFlag),
		s.CreatedAt, s.ExpiresAt, timeToNullTime(s.LastSeenAt), timeToNullTime(s.RevokedAt))
	return err
}

// GetByID returns the session for id within the tenant bound to ctx, or nil
// if not found. A tenant mismatch is indistinguishable from a missing row.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return scanSession(row)
}

// ListByUser returns the user's sessions within the tenant bound to ctx,
// most recent first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = $1 AND tenant_id = $2 ORDER BY created_at DESC`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Revoke deactivates the session. Idempotent: revoking an inactive or
// missing session within the tenant returns nil.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE, revoked_at = COALESCE(revoked_at, $1)
		 WHERE id = $2 AND tenant_id = $3`, time.Now().UTC(), id, tenantID)
	return err
}

// RevokeFamily deactivates every session sharing familyID within the tenant
// bound to ctx and stamps the anomaly flag. Idempotent.
func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID, anomaly string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE, revoked_at = COALESCE(revoked_at, $1),
		        anomaly_flag = COALESCE(NULLIF(anomaly_flag, ''), $2)
		 WHERE refresh_family_id = $3 AND tenant_id = $4`,
		time.Now().UTC(), anomaly, familyID, tenantID)
	return err
}

// RevokeAllForUser deactivates every session for the user within the tenant
// bound to ctx, across all families. Idempotent.
func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE, revoked_at = COALESCE(revoked_at, $1)
		 WHERE user_id = $2 AND tenant_id = $3`, time.Now().UTC(), userID, tenantID)
	return err
}

// RotateRefresh performs the single-round-trip conditional update that closes
// the concurrent-refresh race: the sequence bump commits only if the stored
// sequence still equals expectedSeq and the session is active.
func (r *PostgresRepository) RotateRefresh(ctx context.Context, sessionID string, expectedSeq int64, rot Rotation) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET refresh_sequence = $1, refresh_token_hash = $2, access_token_id = $3, last_seen_at = $4
		 WHERE id = $5 AND tenant_id = $6 AND refresh_sequence = $7 AND is_active = TRUE`,
		rot.NewSequence, rot.RefreshTokenHash, rot.AccessTokenID, rot.LastSeenAt,
		sessionID, tenantID, expectedSeq)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSequenceConflict
	}
	return nil
}

// SweepExpired deactivates sessions past expires_at. System-scoped: runs
// across tenants, flips status only, never deletes rows.
func (r *PostgresRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE, revoked_at = COALESCE(revoked_at, $1)
		 WHERE is_active = TRUE AND expires_at < $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	s, err := scanSessionRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSessionRows(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var fingerprint, ip, userAgent, anomaly sql.NullString
	var lastSeen, revoked sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.TenantID, &s.AccessTokenID, &s.RefreshFamilyID,
		&s.RefreshSequence, &s.RefreshTokenHash, &fingerprint, &ip, &userAgent,
		&s.IsActive, &anomaly, &s.CreatedAt, &s.ExpiresAt, &lastSeen, &revoked)
	if err != nil {
		return nil, err
	}
	s.DeviceFingerprint = fingerprint.String
	s.IPAddress = ip.String
	s.UserAgent = userAgent.String
	s.AnomalyFlag = anomaly.String
	s.LastSeenAt = nullTimeToPtr(lastSeen)
	s.RevokedAt = nullTimeToPtr(revoked)
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
