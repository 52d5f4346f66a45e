// Package store defines the persistence surface the auth core runs against.
// Implementations live in pgstore (Postgres via sqlx) and memstore (in-process).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	settingentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/entity"
	tpentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/token/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Fields reported by UniqueViolation.
const (
	FieldUsername         = "username"
	FieldEmail            = "email"
	FieldPhone            = "phone"
	FieldProviderIdentity = "provider_identity"
	FieldProviderSlot     = "provider_slot"
	FieldToken            = "token"
)

// UniqueViolation is returned when a write hits a uniqueness constraint.
type UniqueViolation struct {
	Field string
}

func (e *UniqueViolation) Error() string {
	return fmt.Sprintf("store: duplicate %s", e.Field)
}

// IsUnique reports whether err is a UniqueViolation and returns the field.
func IsUnique(err error) (string, bool) {
	var uv *UniqueViolation
	if errors.As(err, &uv) {
		return uv.Field, true
	}
	return "", false
}

// Users is the credential store. Lookups by identifier ignore soft-deleted rows.
type Users interface {
	CreateUser(ctx context.Context, u *entity.User) error
	CreateProfile(ctx context.Context, p *entity.Profile) error
	CreateRole(ctx context.Context, r *entity.Role) error
	GetUser(ctx context.Context, id int64) (*entity.User, error)
	// FindUserByLogin matches username, email or phone.
	FindUserByLogin(ctx context.Context, identifier string) (*entity.User, error)
	// FindUserByContact matches email or phone only.
	FindUserByContact(ctx context.Context, identifier string) (*entity.User, error)
	// UserFieldTaken reports whether a non-deleted user already holds value
	// in field (FieldUsername, FieldEmail or FieldPhone).
	UserFieldTaken(ctx context.Context, field, value string) (bool, error)
	RecordLogin(ctx context.Context, id int64, at time.Time) error
	SetPassword(ctx context.Context, id int64, hash string, at time.Time) error
	MarkVerified(ctx context.Context, id int64, at time.Time) error
	ListRoles(ctx context.Context, userID int64) ([]string, error)
}

// Settings persists per-user preference rows.
type Settings interface {
	CreateSetting(ctx context.Context, s *settingentity.Setting) error
}

// RefreshTokens persists sessions.
type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t *tokenentity.RefreshToken) error
	// FindActiveRefreshToken returns a non-revoked, non-deleted token row.
	FindActiveRefreshToken(ctx context.Context, userID int64, token string) (*tokenentity.RefreshToken, error)
	// FindRefreshToken returns a non-deleted token row regardless of revocation.
	FindRefreshToken(ctx context.Context, userID int64, token string) (*tokenentity.RefreshToken, error)
	TouchRefreshToken(ctx context.Context, id int64, at time.Time) error
	RevokeRefreshToken(ctx context.Context, id int64, at time.Time) error
	RevokeAllRefreshTokens(ctx context.Context, userID int64, at time.Time) (int64, error)
}

// ResetTokens persists password reset attempts.
type ResetTokens interface {
	CreateResetToken(ctx context.Context, t *tokenentity.PasswordResetToken) error
	// FindResetToken matches token and code exactly among unused, non-deleted rows.
	FindResetToken(ctx context.Context, token, code string) (*tokenentity.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id int64, at time.Time) error
}

// Accounts persists third-party bindings. Lookups ignore soft-deleted rows.
type Accounts interface {
	CreateAccount(ctx context.Context, a *tpentity.Account) error
	FindAccount(ctx context.Context, provider tpentity.Provider, providerUserID string) (*tpentity.Account, error)
	FindAccountForUser(ctx context.Context, userID int64, provider tpentity.Provider) (*tpentity.Account, error)
	CountOtherAccounts(ctx context.Context, userID, excludeID int64) (int, error)
	UpdateAccountLogin(ctx context.Context, a *tpentity.Account) error
	UnbindAccount(ctx context.Context, id int64, at time.Time) error
}

// Audit appends login history and security events.
type Audit interface {
	AppendLoginHistory(ctx context.Context, h *auditentity.LoginHistory) error
	AppendSecurityLog(ctx context.Context, l *auditentity.SecurityLog) error
}

// Repository is the full set of store operations.
type Repository interface {
	Users
	Settings
	RefreshTokens
	ResetTokens
	Accounts
	Audit
}

// Store is a Repository that can also run a unit of work atomically.
// Operations on the Repository passed to fn commit together when fn returns
// nil and are rolled back otherwise.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(tx Repository) error) error
}
