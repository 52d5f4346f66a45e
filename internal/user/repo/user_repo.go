package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// UserRepo provides data access for users, user_profiles and user_roles using sqlx.
// db is either a *sqlx.DB or a *sqlx.Tx.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the user tables if not exists (idempotent).
// Uniqueness of username/email/phone is enforced by partial unique indexes
// over non-deleted rows; the index names are mapped back to fields on insert.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS users (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL,
  email TEXT,
  phone TEXT,
  password_hash TEXT,
  password_updated_at TIMESTAMPTZ,
  status TEXT NOT NULL DEFAULT 'active',
  is_verified BOOLEAN NOT NULL DEFAULT false,
  login_count INT NOT NULL DEFAULT 0,
  last_login_at TIMESTAMPTZ,
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  deleted_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_users_username ON users(username) WHERE is_deleted = false;
CREATE UNIQUE INDEX IF NOT EXISTS uq_users_email ON users(email) WHERE is_deleted = false AND email IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS uq_users_phone ON users(phone) WHERE is_deleted = false AND phone IS NOT NULL;
CREATE TABLE IF NOT EXISTS user_profiles (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  nickname TEXT NOT NULL DEFAULT '',
  avatar_url TEXT,
  gender TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_user_profiles_user ON user_profiles(user_id);
CREATE TABLE IF NOT EXISTS user_roles (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  role TEXT NOT NULL,
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_user_roles_user ON user_roles(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func translate(err error) error {
	if name, ok := database.UniqueViolation(err); ok {
		switch name {
		case "uq_users_username":
			return &store.UniqueViolation{Field: store.FieldUsername}
		case "uq_users_email":
			return &store.UniqueViolation{Field: store.FieldEmail}
		case "uq_users_phone":
			return &store.UniqueViolation{Field: store.FieldPhone}
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

const userColumns = `id, username, email, phone, password_hash, password_updated_at,
	status, is_verified, login_count, last_login_at, is_deleted, deleted_at, created_at, updated_at`

// CreateUser inserts a user row with a caller-assigned id.
func (r *UserRepo) CreateUser(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, username, email, phone, password_hash, password_updated_at, status, is_verified, created_at, updated_at)
		VALUES (:id, :username, :email, :phone, :password_hash, :password_updated_at, :status, :is_verified, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, u); err != nil {
		return translate(err)
	}
	return nil
}

// CreateProfile inserts the profile row of a user.
func (r *UserRepo) CreateProfile(ctx context.Context, p *entity.Profile) error {
	const q = `INSERT INTO user_profiles (id, user_id, nickname, avatar_url, gender, created_at)
		VALUES (:id, :user_id, :nickname, :avatar_url, :gender, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, p)
	return err
}

// CreateRole assigns a role to a user.
func (r *UserRepo) CreateRole(ctx context.Context, role *entity.Role) error {
	const q = `INSERT INTO user_roles (id, user_id, role, created_at) VALUES (:id, :user_id, :role, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, role)
	return err
}

// GetUser fetches a full user row by id, including soft-deleted rows.
func (r *UserRepo) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, q, id); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// FindUserByLogin returns the first non-deleted user whose username, email or phone equals identifier.
func (r *UserRepo) FindUserByLogin(ctx context.Context, identifier string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users
		WHERE is_deleted = false AND (username=$1 OR email=$1 OR phone=$1)
		ORDER BY created_at LIMIT 1`
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, q, identifier); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// FindUserByContact returns the first non-deleted user whose email or phone equals identifier.
func (r *UserRepo) FindUserByContact(ctx context.Context, identifier string) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users
		WHERE is_deleted = false AND (email=$1 OR phone=$1)
		ORDER BY created_at LIMIT 1`
	var u entity.User
	if err := sqlx.GetContext(ctx, r.db, &u, q, identifier); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UserFieldTaken checks uniqueness of username/email/phone among non-deleted users.
func (r *UserRepo) UserFieldTaken(ctx context.Context, field, value string) (bool, error) {
	var column string
	switch field {
	case store.FieldUsername, store.FieldEmail, store.FieldPhone:
		column = field
	default:
		return false, fmt.Errorf("unknown user field %q", field)
	}
	q := `SELECT EXISTS (SELECT 1 FROM users WHERE is_deleted = false AND ` + column + `=$1)`
	var taken bool
	if err := sqlx.GetContext(ctx, r.db, &taken, q, value); err != nil {
		return false, err
	}
	return taken, nil
}

// RecordLogin bumps the login counter and last-login timestamp.
func (r *UserRepo) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE users SET login_count = login_count + 1, last_login_at=$2, updated_at=$2 WHERE id=$1`
	return expectOne(r.db.ExecContext(ctx, q, id, at))
}

// SetPassword replaces the password hash.
func (r *UserRepo) SetPassword(ctx context.Context, id int64, hash string, at time.Time) error {
	const q = `UPDATE users SET password_hash=$2, password_updated_at=$3, updated_at=$3 WHERE id=$1`
	return expectOne(r.db.ExecContext(ctx, q, id, hash, at))
}

// MarkVerified sets the verified flag.
func (r *UserRepo) MarkVerified(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE users SET is_verified=true, updated_at=$2 WHERE id=$1`
	return expectOne(r.db.ExecContext(ctx, q, id, at))
}

// ListRoles returns the active role names of a user.
func (r *UserRepo) ListRoles(ctx context.Context, userID int64) ([]string, error) {
	const q = `SELECT role FROM user_roles WHERE user_id=$1 AND is_deleted = false ORDER BY created_at`
	var roles []string
	if err := sqlx.SelectContext(ctx, r.db, &roles, q, userID); err != nil {
		return nil, err
	}
	return roles, nil
}

func expectOne(res sql.Result, err error) error {
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
