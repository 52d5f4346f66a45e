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

// RefreshRepo persists refresh sessions. Rows are revoked, never deleted.
type RefreshRepo struct {
	db sqlx.ExtContext
}

func NewRefreshRepo(db sqlx.ExtContext) *RefreshRepo {
	return &RefreshRepo{db: db}
}

// EnsureTable creates refresh_tokens and its indexes.
func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token TEXT NOT NULL,
  token_type TEXT NOT NULL DEFAULT 'refresh',
  expires_at TIMESTAMPTZ NOT NULL,
  device_id TEXT,
  device_type TEXT,
  device_name TEXT,
  ip_address TEXT,
  user_agent TEXT,
  is_revoked BOOLEAN NOT NULL DEFAULT false,
  revoked_at TIMESTAMPTZ,
  last_used_at TIMESTAMPTZ,
  use_count INT NOT NULL DEFAULT 0,
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_refresh_tokens_token ON refresh_tokens(token);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id) WHERE is_revoked = false;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const refreshColumns = `id, user_id, token, token_type, expires_at, device_id, device_type, device_name,
	ip_address, user_agent, is_revoked, revoked_at, last_used_at, use_count, is_deleted, created_at`

// CreateRefreshToken inserts a session row.
func (r *RefreshRepo) CreateRefreshToken(ctx context.Context, t *entity.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (id, user_id, token, token_type, expires_at, device_id, device_type, device_name, ip_address, user_agent, created_at)
		VALUES (:id, :user_id, :token, :token_type, :expires_at, :device_id, :device_type, :device_name, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, t); err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return &store.UniqueViolation{Field: store.FieldToken}
		}
		return err
	}
	return nil
}

// FindActiveRefreshToken returns the non-revoked row for (userID, token).
func (r *RefreshRepo) FindActiveRefreshToken(ctx context.Context, userID int64, token string) (*entity.RefreshToken, error) {
	q := `SELECT ` + refreshColumns + ` FROM refresh_tokens
		WHERE user_id=$1 AND token=$2 AND is_revoked = false AND is_deleted = false`
	return r.get(ctx, q, userID, token)
}

// FindRefreshToken returns the row for (userID, token) even if revoked.
func (r *RefreshRepo) FindRefreshToken(ctx context.Context, userID int64, token string) (*entity.RefreshToken, error) {
	q := `SELECT ` + refreshColumns + ` FROM refresh_tokens
		WHERE user_id=$1 AND token=$2 AND is_deleted = false`
	return r.get(ctx, q, userID, token)
}

func (r *RefreshRepo) get(ctx context.Context, q string, args ...any) (*entity.RefreshToken, error) {
	var t entity.RefreshToken
	if err := sqlx.GetContext(ctx, r.db, &t, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// TouchRefreshToken records one use of the token.
func (r *RefreshRepo) TouchRefreshToken(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET use_count = use_count + 1, last_used_at=$2 WHERE id=$1`, id, at)
	return err
}

// RevokeRefreshToken marks a single token as revoked.
func (r *RefreshRepo) RevokeRefreshToken(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET is_revoked=true, revoked_at=$2 WHERE id=$1 AND is_revoked = false`, id, at)
	return err
}

// RevokeAllRefreshTokens revokes every active token of the user and returns how many were revoked.
func (r *RefreshRepo) RevokeAllRefreshTokens(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET is_revoked=true, revoked_at=$2 WHERE user_id=$1 AND is_revoked = false AND is_deleted = false`,
		userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
