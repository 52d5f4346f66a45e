package entity

import "time"

// Provider identifies an external identity provider.
type Provider string

const (
	ProviderWechat   Provider = "wechat"
	ProviderApple    Provider = "apple"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

func (p Provider) String() string { return string(p) }

// Account binds a local user to an identity asserted by a Provider.
// (Provider, ProviderUserID) is unique among non-deleted rows.
type Account struct {
	ID               int64      `db:"id"`
	UserID           int64      `db:"user_id"`
	Provider         Provider   `db:"provider"`
	ProviderUserID   string     `db:"provider_user_id"`
	ProviderUsername *string    `db:"provider_username"`
	AccessToken      *string    `db:"access_token"`
	RefreshToken     *string    `db:"refresh_token"`
	ExpiresAt        *time.Time `db:"expires_at"`
	Nickname         *string    `db:"nickname"`
	AvatarURL        *string    `db:"avatar_url"`
	Email            *string    `db:"email"`
	IsBound          bool       `db:"is_bound"`
	LastLoginAt      *time.Time `db:"last_login_at"`
	IsDeleted        bool       `db:"is_deleted"`
	DeletedAt        *time.Time `db:"deleted_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}
