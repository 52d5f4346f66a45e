package entity

import "time"

// Status values of a user account.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

// Role values assignable to a user.
const (
	RoleUser       = "user"
	RoleCoach      = "coach"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// User represents an account row in the `users` table.
// Username is always set; at least one of Email/Phone is set for accounts
// created through registration. PasswordHash is nil for third-party-only accounts.
type User struct {
	ID                int64      `db:"id"`
	Username          string     `db:"username"`
	Email             *string    `db:"email"`
	Phone             *string    `db:"phone"`
	PasswordHash      *string    `db:"password_hash"`
	PasswordUpdatedAt *time.Time `db:"password_updated_at"`
	Status            string     `db:"status"`
	Verified          bool       `db:"is_verified"`
	LoginCount        int        `db:"login_count"`
	LastLoginAt       *time.Time `db:"last_login_at"`
	IsDeleted         bool       `db:"is_deleted"`
	DeletedAt         *time.Time `db:"deleted_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// HasPassword reports whether the account can log in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Profile is the public-facing profile created alongside every user.
type Profile struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Nickname  string    `db:"nickname"`
	AvatarURL *string   `db:"avatar_url"`
	Gender    *string   `db:"gender"`
	CreatedAt time.Time `db:"created_at"`
}

// Role assigns one role to a user; a user may hold several.
type Role struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Role      string    `db:"role"`
	IsDeleted bool      `db:"is_deleted"`
	CreatedAt time.Time `db:"created_at"`
}
