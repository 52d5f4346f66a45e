package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// AccountRepo persists third-party account bindings.
type AccountRepo struct {
	db sqlx.ExtContext
}

func NewAccountRepo(db sqlx.ExtContext) *AccountRepo {
	return &AccountRepo{db: db}
}

// EnsureTable creates third_party_accounts. The two partial unique indexes
// keep one external identity per local user and one binding per provider per user.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS third_party_accounts (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  provider varchar(20) NOT NULL,
  provider_user_id TEXT NOT NULL,
  provider_username TEXT,
  access_token TEXT,
  refresh_token TEXT,
  expires_at TIMESTAMPTZ,
  nickname TEXT,
  avatar_url TEXT,
  email TEXT,
  is_bound BOOLEAN NOT NULL DEFAULT true,
  last_login_at TIMESTAMPTZ,
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  deleted_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_third_party_identity ON third_party_accounts(provider, provider_user_id) WHERE is_deleted = false;
CREATE UNIQUE INDEX IF NOT EXISTS uq_third_party_user_provider ON third_party_accounts(user_id, provider) WHERE is_deleted = false;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const accountColumns = `id, user_id, provider, provider_user_id, provider_username, access_token, refresh_token,
	expires_at, nickname, avatar_url, email, is_bound, last_login_at, is_deleted, deleted_at, created_at, updated_at`

// CreateAccount inserts a binding.
func (r *AccountRepo) CreateAccount(ctx context.Context, a *entity.Account) error {
	const q = `INSERT INTO third_party_accounts (id, user_id, provider, provider_user_id, provider_username, access_token, refresh_token,
		expires_at, nickname, avatar_url, email, is_bound, last_login_at, created_at, updated_at)
		VALUES (:id, :user_id, :provider, :provider_user_id, :provider_username, :access_token, :refresh_token,
		:expires_at, :nickname, :avatar_url, :email, :is_bound, :last_login_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, a); err != nil {
		switch name, _ := database.UniqueViolation(err); name {
		case "uq_third_party_identity":
			return &store.UniqueViolation{Field: store.FieldProviderIdentity}
		case "uq_third_party_user_provider":
			return &store.UniqueViolation{Field: store.FieldProviderSlot}
		}
		return err
	}
	return nil
}

// FindAccount looks up the live binding of an external identity.
func (r *AccountRepo) FindAccount(ctx context.Context, provider entity.Provider, providerUserID string) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM third_party_accounts
		WHERE provider=$1 AND provider_user_id=$2 AND is_deleted = false`
	return r.get(ctx, q, provider, providerUserID)
}

// FindAccountForUser looks up the live binding a user holds for a provider.
func (r *AccountRepo) FindAccountForUser(ctx context.Context, userID int64, provider entity.Provider) (*entity.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM third_party_accounts
		WHERE user_id=$1 AND provider=$2 AND is_deleted = false
		ORDER BY created_at LIMIT 1`
	return r.get(ctx, q, userID, provider)
}

func (r *AccountRepo) get(ctx context.Context, q string, args ...any) (*entity.Account, error) {
	var a entity.Account
	if err := sqlx.GetContext(ctx, r.db, &a, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CountOtherAccounts counts live bindings of the user except excludeID.
func (r *AccountRepo) CountOtherAccounts(ctx context.Context, userID, excludeID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM third_party_accounts WHERE user_id=$1 AND id <> $2 AND is_deleted = false`
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, q, userID, excludeID); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateAccountLogin refreshes cached provider data and the last-login time.
func (r *AccountRepo) UpdateAccountLogin(ctx context.Context, a *entity.Account) error {
	const q = `UPDATE third_party_accounts SET access_token=:access_token, refresh_token=:refresh_token, expires_at=:expires_at,
		nickname=:nickname, avatar_url=:avatar_url, email=:email, last_login_at=:last_login_at, updated_at=:updated_at
		WHERE id=:id`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, a)
	return err
}

// UnbindAccount soft-deletes a binding.
func (r *AccountRepo) UnbindAccount(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE third_party_accounts SET is_bound=false, is_deleted=true, deleted_at=$2, updated_at=$2 WHERE id=$1 AND is_deleted = false`
	res, err := r.db.ExecContext(ctx, q, id, at)
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
