package entity

import "time"

// Setting holds per-user preferences. A row with defaults is created at
// registration; later edits belong to the profile surface.
type Setting struct {
	ID                int64     `db:"id"`
	UserID            int64     `db:"user_id"`
	ProfileVisible    bool      `db:"profile_visible"`
	AllowFollow       bool      `db:"allow_follow"`
	AllowMessage      bool      `db:"allow_message"`
	EmailNotification bool      `db:"email_notification"`
	PushNotification  bool      `db:"push_notification"`
	Language          string    `db:"language"`
	Theme             string    `db:"theme"`
	CreatedAt         time.Time `db:"created_at"`
}

// NewDefaultSetting returns the settings every new account starts with.
func NewDefaultSetting(id, userID int64, now time.Time) *Setting {
	return &Setting{
		ID:                id,
		UserID:            userID,
		ProfileVisible:    true,
		AllowFollow:       true,
		AllowMessage:      true,
		EmailNotification: true,
		PushNotification:  true,
		Language:          "zh-CN",
		Theme:             "light",
		CreatedAt:         now,
	}
}
