package auth

import (
	"context"
	"errors"
	"strings"

	auditentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/token/entity"
)

// ResetTicket is the result of a reset request. Token and Code are only
// filled when ExposeResetToken is enabled.
type ResetTicket struct {
	Token   string `json:"reset_token,omitempty"`
	Code    string `json:"verification_code,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// RequestPasswordReset starts a reset for the user owning the email or phone
// identifier. It succeeds with an empty ticket when nobody matches.
func (s *Service) RequestPasswordReset(ctx context.Context, identifier string, d DeviceInfo) (*ResetTicket, error) {
	identifier = strings.TrimSpace(identifier)
	u, err := s.store.FindUserByContact(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debugw("password reset requested for unknown identifier")
		return &ResetTicket{}, nil
	}
	if err != nil {
		return nil, s.fail("request_password_reset", err)
	}

	secret, err := token.Opaque()
	if err != nil {
		return nil, s.fail("request_password_reset", err)
	}
	code, err := token.NumericCode()
	if err != nil {
		return nil, s.fail("request_password_reset", err)
	}
	channel := tokenentity.ChannelSMS
	if strings.Contains(identifier, "@") {
		channel = tokenentity.ChannelEmail
	}
	now := s.now()
	row := &tokenentity.PasswordResetToken{
		ID:               s.ids.Next(),
		UserID:           u.ID,
		Token:            secret,
		VerificationCode: code,
		VerificationType: channel,
		ExpiresAt:        now.Add(s.cfg.ResetTokenTTL),
		IPAddress:        opt(d.IPAddress),
		UserAgent:        opt(d.UserAgent),
		CreatedAt:        now,
	}
	if err := s.store.CreateResetToken(ctx, row); err != nil {
		return nil, s.fail("request_password_reset", err)
	}

	delivery := notify.Delivery{Channel: channel, Destination: identifier, Purpose: notify.PurposePasswordReset, Token: secret, Code: code}
	if err := s.notifier.Dispatch(ctx, delivery); err != nil {
		s.logger.Warnw("reset code delivery failed", "user_id", u.ID, "channel", channel, "error", err)
	}

	if !s.cfg.ExposeResetToken {
		return &ResetTicket{}, nil
	}
	return &ResetTicket{Token: secret, Code: code, Channel: channel}, nil
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every session of the user.
func (s *Service) ResetPassword(ctx context.Context, resetToken, code, newPassword string) error {
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	row, err := s.store.FindResetToken(ctx, resetToken, code)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidTokenOrCode
	}
	if err != nil {
		return s.fail("reset_password", err)
	}
	now := s.now()
	if !row.ExpiresAt.After(now) {
		return ErrTokenExpired
	}
	u, err := s.liveUser(ctx, s.store, row.UserID)
	if err != nil {
		return s.fail("reset_password", err)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.fail("reset_password", err)
	}

	err = s.store.InTx(ctx, func(tx store.Repository) error {
		if err := tx.MarkResetTokenUsed(ctx, row.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidTokenOrCode
			}
			return err
		}
		if err := tx.SetPassword(ctx, u.ID, hash, now); err != nil {
			return err
		}
		_, err := tx.RevokeAllRefreshTokens(ctx, u.ID, now)
		return err
	})
	if err != nil {
		return s.fail("reset_password", err)
	}
	s.audit.Security(ctx, u.ID, auditentity.EventPasswordReset, "password reset via "+row.VerificationType)
	return nil
}

// ChangePassword replaces the password after checking the old one. Sessions
// are revoked when RevokeSessionsOnPasswordChange is set.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	u, err := s.liveUser(ctx, s.store, userID)
	if err != nil {
		return s.fail("change_password", err)
	}
	if !u.HasPassword() || !s.hasher.Verify(*u.PasswordHash, oldPassword) {
		return ErrWrongOldPassword
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.fail("change_password", err)
	}
	now := s.now()
	err = s.store.InTx(ctx, func(tx store.Repository) error {
		if err := tx.SetPassword(ctx, u.ID, hash, now); err != nil {
			return err
		}
		if s.cfg.RevokeSessionsOnPasswordChange {
			_, err := tx.RevokeAllRefreshTokens(ctx, u.ID, now)
			return err
		}
		return nil
	})
	if err != nil {
		return s.fail("change_password", err)
	}
	s.audit.Security(ctx, u.ID, auditentity.EventPasswordChange, "password changed")
	return nil
}

// SetPassword gives a password to an account that has none, typically one
// created through a third-party login.
func (s *Service) SetPassword(ctx context.Context, userID int64, newPassword string) error {
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	u, err := s.liveUser(ctx, s.store, userID)
	if err != nil {
		return s.fail("set_password", err)
	}
	if u.HasPassword() {
		return ErrPasswordAlreadySet
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.fail("set_password", err)
	}
	if err := s.store.SetPassword(ctx, u.ID, hash, s.now()); err != nil {
		return s.fail("set_password", err)
	}
	s.audit.Security(ctx, u.ID, auditentity.EventPasswordSet, "password set")
	return nil
}
