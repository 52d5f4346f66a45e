package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
)

// AuditRepo appends login history and security log rows. Rows are never updated.
type AuditRepo struct {
	db sqlx.ExtContext
}

func NewAuditRepo(db sqlx.ExtContext) *AuditRepo {
	return &AuditRepo{db: db}
}

// EnsureTable creates the login_history and security_logs tables if they do not already exist.
// user_id carries no foreign key: failed attempts against unknown identifiers are kept too.
func (r *AuditRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS login_history (
		id varchar(27) PRIMARY KEY,
		user_id BIGINT,
		login_type varchar(50) NOT NULL,
		is_success BOOLEAN NOT NULL,
		fail_reason varchar(255),
		device_id TEXT,
		device_type varchar(50),
		device_name varchar(100),
		os_version varchar(50),
		app_version varchar(50),
		ip_address varchar(50),
		user_agent varchar(500),
		login_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS security_logs (
		id varchar(27) PRIMARY KEY,
		user_id BIGINT,
		event_type varchar(50) NOT NULL,
		event_description TEXT,
		ip_address varchar(50),
		user_agent varchar(500),
		is_success BOOLEAN NOT NULL,
		error_message varchar(500),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE INDEX IF NOT EXISTS idx_login_history_user ON login_history (user_id, login_at);
	CREATE INDEX IF NOT EXISTS idx_security_logs_user ON security_logs (user_id, event_type);
	`
	_, err := r.db.ExecContext(ctx, idx)
	return err
}

// AppendLoginHistory inserts one login attempt.
func (r *AuditRepo) AppendLoginHistory(ctx context.Context, h *entity.LoginHistory) error {
	const q = `INSERT INTO login_history (id, user_id, login_type, is_success, fail_reason, device_id, device_type, device_name,
		os_version, app_version, ip_address, user_agent, login_at)
		VALUES (:id, :user_id, :login_type, :is_success, :fail_reason, :device_id, :device_type, :device_name,
		:os_version, :app_version, :ip_address, :user_agent, :login_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, h)
	return err
}

// AppendSecurityLog inserts one security event.
func (r *AuditRepo) AppendSecurityLog(ctx context.Context, l *entity.SecurityLog) error {
	const q = `INSERT INTO security_logs (id, user_id, event_type, event_description, ip_address, user_agent, is_success, error_message, created_at)
		VALUES (:id, :user_id, :event_type, :event_description, :ip_address, :user_agent, :is_success, :error_message, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, l)
	return err
}
