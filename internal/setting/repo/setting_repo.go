package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/entity"
)

// Repo is the repository implementation for user settings backed by PostgreSQL.
type Repo struct {
	db sqlx.ExtContext
}

// NewRepo constructs a new Repo over a *sqlx.DB or *sqlx.Tx.
func NewRepo(db sqlx.ExtContext) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the user_settings table and its index exist.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS user_settings (
  id BIGINT PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  profile_visible BOOLEAN NOT NULL DEFAULT true,
  allow_follow BOOLEAN NOT NULL DEFAULT true,
  allow_message BOOLEAN NOT NULL DEFAULT true,
  email_notification BOOLEAN NOT NULL DEFAULT true,
  push_notification BOOLEAN NOT NULL DEFAULT true,
  language varchar(10) NOT NULL DEFAULT 'zh-CN',
  theme varchar(20) NOT NULL DEFAULT 'light',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_user_settings_user ON user_settings (user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// CreateSetting inserts the settings row of a user.
func (r *Repo) CreateSetting(ctx context.Context, s *entity.Setting) error {
	const q = `INSERT INTO user_settings (id, user_id, profile_visible, allow_follow, allow_message, email_notification, push_notification, language, theme, created_at)
		VALUES (:id, :user_id, :profile_visible, :allow_follow, :allow_message, :email_notification, :push_notification, :language, :theme, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, s)
	return err
}
