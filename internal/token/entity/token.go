package entity

import "time"

// RefreshToken represents one logged-in session/device. Token holds the
// opaque random string embedded in the signed wrapper handed to clients.
type RefreshToken struct {
	ID         int64      `db:"id"`
	UserID     int64      `db:"user_id"`
	Token      string     `db:"token"`
	TokenType  string     `db:"token_type"`
	ExpiresAt  time.Time  `db:"expires_at"`
	DeviceID   *string    `db:"device_id"`
	DeviceType *string    `db:"device_type"`
	DeviceName *string    `db:"device_name"`
	IPAddress  *string    `db:"ip_address"`
	UserAgent  *string    `db:"user_agent"`
	IsRevoked  bool       `db:"is_revoked"`
	RevokedAt  *time.Time `db:"revoked_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
	UseCount   int        `db:"use_count"`
	IsDeleted  bool       `db:"is_deleted"`
	CreatedAt  time.Time  `db:"created_at"`
}

// Usable reports whether the token may still be exchanged for access tokens.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// Verification channels for password reset codes.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// PasswordResetToken represents one password reset attempt. It is consumed
// at most once.
type PasswordResetToken struct {
	ID               int64      `db:"id"`
	UserID           int64      `db:"user_id"`
	Token            string     `db:"token"`
	VerificationCode string     `db:"verification_code"`
	VerificationType string     `db:"verification_type"`
	ExpiresAt        time.Time  `db:"expires_at"`
	IsUsed           bool       `db:"is_used"`
	UsedAt           *time.Time `db:"used_at"`
	IPAddress        *string    `db:"ip_address"`
	UserAgent        *string    `db:"user_agent"`
	IsDeleted        bool       `db:"is_deleted"`
	CreatedAt        time.Time  `db:"created_at"`
}

// Usable reports whether the reset token is unused and unexpired.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.IsUsed && t.ExpiresAt.After(now)
}
