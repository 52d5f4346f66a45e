package entity

import "time"

// LoginHistory is one append-only row per login attempt. UserID is nil when
// the identifier did not resolve to a user.
type LoginHistory struct {
	ID         string    `db:"id"`
	UserID     *int64    `db:"user_id"`
	LoginType  string    `db:"login_type"`
	IsSuccess  bool      `db:"is_success"`
	FailReason *string   `db:"fail_reason"`
	DeviceID   *string   `db:"device_id"`
	DeviceType *string   `db:"device_type"`
	DeviceName *string   `db:"device_name"`
	OSVersion  *string   `db:"os_version"`
	AppVersion *string   `db:"app_version"`
	IPAddress  *string   `db:"ip_address"`
	UserAgent  *string   `db:"user_agent"`
	LoginAt    time.Time `db:"login_at"`
}

// Security event types.
const (
	EventPasswordChange = "password_change"
	EventPasswordReset  = "password_reset"
	EventPasswordSet    = "password_set"
	EventEmailVerified  = "email_verified"
	EventAccountBind    = "third_party_bind"
	EventAccountUnbind  = "third_party_unbind"
	EventLogoutAll      = "logout_all"
)

// SecurityLog is one append-only row per sensitive account event.
type SecurityLog struct {
	ID               string    `db:"id"`
	UserID           *int64    `db:"user_id"`
	EventType        string    `db:"event_type"`
	EventDescription *string   `db:"event_description"`
	IPAddress        *string   `db:"ip_address"`
	UserAgent        *string   `db:"user_agent"`
	IsSuccess        bool      `db:"is_success"`
	ErrorMessage     *string   `db:"error_message"`
	CreatedAt        time.Time `db:"created_at"`
}
