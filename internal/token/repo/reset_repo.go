package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// ResetRepo persists password reset tokens.
type ResetRepo struct {
	db sqlx.ExtContext
}

func NewResetRepo(db sqlx.ExtContext) *ResetRepo {
	return &ResetRepo{db: db}
}

// EnsureTable creates password_reset_tokens.
func (r *ResetRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS password_reset_tokens (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token TEXT NOT NULL,
  verification_code varchar(10) NOT NULL,
  verification_type varchar(20) NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  is_used BOOLEAN NOT NULL DEFAULT false,
  used_at TIMESTAMPTZ,
  ip_address TEXT,
  user_agent TEXT,
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_password_reset_tokens_token ON password_reset_tokens(token);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// CreateResetToken inserts a reset attempt.
func (r *ResetRepo) CreateResetToken(ctx context.Context, t *entity.PasswordResetToken) error {
	const q = `INSERT INTO password_reset_tokens (id, user_id, token, verification_code, verification_type, expires_at, ip_address, user_agent, created_at)
		VALUES (:id, :user_id, :token, :verification_code, :verification_type, :expires_at, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, t); err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return &store.UniqueViolation{Field: store.FieldToken}
		}
		return err
	}
	return nil
}

// FindResetToken matches token and verification code among unused rows.
// Wrong token and wrong code are indistinguishable to the caller.
func (r *ResetRepo) FindResetToken(ctx context.Context, token, code string) (*entity.PasswordResetToken, error) {
	const q = `SELECT id, user_id, token, verification_code, verification_type, expires_at, is_used, used_at,
		ip_address, user_agent, is_deleted, created_at
		FROM password_reset_tokens
		WHERE token=$1 AND verification_code=$2 AND is_used = false AND is_deleted = false`
	var t entity.PasswordResetToken
	if err := sqlx.GetContext(ctx, r.db, &t, q, token, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// MarkResetTokenUsed consumes the token. It reports ErrNotFound when the
// token was already consumed by a concurrent request.
func (r *ResetRepo) MarkResetTokenUsed(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE password_reset_tokens SET is_used=true, used_at=$2 WHERE id=$1 AND is_used = false`, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
