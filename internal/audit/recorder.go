// Package audit writes login history and security events. Writes are
// fire-and-forget: a failed write is logged and never reaches the caller.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Device describes the client a request came from. Empty fields are stored as NULL.
type Device struct {
	DeviceID   string
	DeviceType string
	DeviceName string
	OSVersion  string
	AppVersion string
	IPAddress  string
	UserAgent  string
}

// Recorder has no methods that return errors.
type Recorder struct {
	sink   store.Audit
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewRecorder(sink store.Audit, logger *zap.SugaredLogger, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{sink: sink, logger: logger, now: now}
}

func opt(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Recorder) login(ctx context.Context, userID *int64, loginType string, ok bool, reason string, d Device) {
	h := &entity.LoginHistory{
		ID:         utilities.NewKSUID(),
		UserID:     userID,
		LoginType:  loginType,
		IsSuccess:  ok,
		FailReason: opt(reason),
		DeviceID:   opt(d.DeviceID),
		DeviceType: opt(d.DeviceType),
		DeviceName: opt(d.DeviceName),
		OSVersion:  opt(d.OSVersion),
		AppVersion: opt(d.AppVersion),
		IPAddress:  opt(d.IPAddress),
		UserAgent:  opt(d.UserAgent),
		LoginAt:    r.now(),
	}
	if err := r.sink.AppendLoginHistory(ctx, h); err != nil {
		r.logger.Warnw("login history write failed", "user_id", userID, "login_type", loginType, "success", ok, "error", err)
	}
}

// LoginSucceeded records a successful login of userID.
func (r *Recorder) LoginSucceeded(ctx context.Context, userID int64, loginType string, d Device) {
	r.login(ctx, &userID, loginType, true, "", d)
}

// LoginFailed records a rejected login. userID is nil when the identifier matched nobody.
func (r *Recorder) LoginFailed(ctx context.Context, userID *int64, loginType, reason string, d Device) {
	r.login(ctx, userID, loginType, false, reason, d)
}

// Security records a successful security event for userID.
func (r *Recorder) Security(ctx context.Context, userID int64, event, description string) {
	l := &entity.SecurityLog{
		ID:               utilities.NewKSUID(),
		UserID:           &userID,
		EventType:        event,
		EventDescription: opt(description),
		IsSuccess:        true,
		CreatedAt:        r.now(),
	}
	if err := r.sink.AppendSecurityLog(ctx, l); err != nil {
		r.logger.Warnw("security log write failed", "user_id", userID, "event", event, "error", err)
	}
}
