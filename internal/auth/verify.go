package auth

import (
	"context"
	"errors"

	auditentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/token/entity"
)

// IssueEmailVerification signs an email verification token for the user's
// current email and sends it. The token is returned only when ExposeResetToken is set.
func (s *Service) IssueEmailVerification(ctx context.Context, userID int64) (string, error) {
	u, err := s.liveUser(ctx, s.store, userID)
	if err != nil {
		return "", s.fail("issue_email_verification", err)
	}
	if u.Email == nil {
		return "", ErrInvalidFormat.Withf("account has no email address")
	}
	raw, err := s.codec.Sign(token.Claims{UserID: u.ID, Type: token.TypeEmailVerify, Email: *u.Email}, s.cfg.EmailVerifyTTL)
	if err != nil {
		return "", s.fail("issue_email_verification", err)
	}
	d := notify.Delivery{Channel: tokenentity.ChannelEmail, Destination: *u.Email, Purpose: notify.PurposeEmailVerify, Token: raw}
	if err := s.notifier.Dispatch(ctx, d); err != nil {
		s.logger.Warnw("verification email delivery failed", "user_id", u.ID, "error", err)
	}
	if !s.cfg.ExposeResetToken {
		return "", nil
	}
	return raw, nil
}

// VerifyEmail marks the user verified. The token is rejected when the
// account's email changed since it was issued.
func (s *Service) VerifyEmail(ctx context.Context, raw string) error {
	claims, err := s.codec.Verify(raw, token.TypeEmailVerify)
	if errors.Is(err, token.ErrExpired) {
		return ErrExpiredToken
	}
	if err != nil {
		return ErrInvalidToken
	}
	u, err := s.liveUser(ctx, s.store, claims.UserID)
	if err != nil {
		return s.fail("verify_email", err)
	}
	if u.Email == nil || *u.Email != claims.Email {
		return ErrInvalidToken
	}
	if u.Verified {
		return nil
	}
	if err := s.store.MarkVerified(ctx, u.ID, s.now()); err != nil {
		return s.fail("verify_email", err)
	}
	s.audit.Security(ctx, u.ID, auditentity.EventEmailVerified, "email verified")
	return nil
}
