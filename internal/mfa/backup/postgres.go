package backup

import (
	"context"
	"database/sql"
	"time"

	"janua/engine/internal/tenant"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a backup-code repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert replaces the user's backup codes within the tenant bound to ctx.
func (r *PostgresRepository) Insert(ctx context.Context, userID string, codeHashes []string) error {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, h := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (user_id, tenant_id, code_hash, consumed, created_at)
			 VALUES ($1, $2, $3, FALSE, $4)`, userID, tenantID, h, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Consume marks the matching unconsumed code as consumed. The conditional
// update makes the single-use guarantee hold under concurrency: only the
// call that flips the row gets true.
func (r *PostgresRepository) Consume(ctx context.Context, userID, codeHash string) (bool, error) {
	tenantID, err := tenant.Require(ctx)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE backup_codes SET consumed = TRUE, consumed_at = $1
		 WHERE user_id = $2 AND tenant_id = $3 AND code_hash = $4 AND consumed = FALSE`,
		time.Now().UTC(), userID, tenantID, codeHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
