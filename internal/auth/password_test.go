package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/notify"
)

func TestRequestPasswordResetHidesUnknownIdentifiers(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	ctx := context.Background()

	unknown, err := f.svc.RequestPasswordReset(ctx, "unregistered@x.com", DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, &ResetTicket{}, unknown)
	assert.Zero(t, f.store.Counts().ResetTokens)

	byUsername, err := f.svc.RequestPasswordReset(ctx, "alice", DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, &ResetTicket{}, byUsername)
	assert.Zero(t, f.store.Counts().ResetTokens)
}

func TestRequestPasswordResetWithoutExposure(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ExposeResetToken = false })
	f.register(t, alice())
	ctx := context.Background()

	known, err := f.svc.RequestPasswordReset(ctx, "alice@x.com", DeviceInfo{})
	require.NoError(t, err)
	unknown, err := f.svc.RequestPasswordReset(ctx, "nobody@x.com", DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, unknown, known)

	d := f.notifier.last(t)
	assert.Equal(t, "email", d.Channel)
	assert.Equal(t, "alice@x.com", d.Destination)
	assert.Equal(t, notify.PurposePasswordReset, d.Purpose)
	assert.Len(t, d.Code, 6)
	assert.Equal(t, 1, f.store.Counts().ResetTokens)
}

func TestRequestPasswordResetChannels(t *testing.T) {
	f := newFixture(t)
	f.register(t, RegisterInput{Username: "alice", Email: "alice@x.com", Phone: "13800138000", Password: "Passw0rd1"})
	ctx := context.Background()

	sms, err := f.svc.RequestPasswordReset(ctx, "13800138000", DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, "sms", sms.Channel)
	assert.Equal(t, sms.Code, f.notifier.last(t).Code)

	email, err := f.svc.RequestPasswordReset(ctx, "alice@x.com", DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, "email", email.Channel)
	assert.NotEqual(t, sms.Token, email.Token)
}

func TestRequestPasswordResetSurvivesDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	f.notifier.err = errors.New("smtp down")

	ticket, err := f.svc.RequestPasswordReset(context.Background(), "alice@x.com", DeviceInfo{})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.Token)
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	ctx := context.Background()
	ticket, err := f.svc.RequestPasswordReset(ctx, "alice@x.com", DeviceInfo{})
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, ticket.Token, ticket.Code, "NewPassw0rd1"))
	err = f.svc.ResetPassword(ctx, ticket.Token, ticket.Code, "OtherPassw0rd1")
	assert.ErrorIs(t, err, ErrInvalidTokenOrCode)

	logs := f.store.SecurityLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "password_reset", logs[0].EventType)
}

func TestResetPasswordRejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	ctx := context.Background()
	ticket, err := f.svc.RequestPasswordReset(ctx, "alice@x.com", DeviceInfo{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, ticket.Token, ticket.Code, "weak"), ErrWeakPassword)

	wrongCode := "000000"
	if ticket.Code == wrongCode {
		wrongCode = "111111"
	}
	wrongToken := f.svc.ResetPassword(ctx, "nope", ticket.Code, "NewPassw0rd1")
	wrongCodeErr := f.svc.ResetPassword(ctx, ticket.Token, wrongCode, "NewPassw0rd1")
	assert.ErrorIs(t, wrongToken, ErrInvalidTokenOrCode)
	assert.Equal(t, wrongToken, wrongCodeErr)

	f.clock.Advance(time.Hour + time.Second)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, ticket.Token, ticket.Code, "NewPassw0rd1"), ErrTokenExpired)
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	ctx := context.Background()
	a, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)
	b, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	ticket, err := f.svc.RequestPasswordReset(ctx, "alice@x.com", DeviceInfo{})
	require.NoError(t, err)
	require.NoError(t, f.svc.ResetPassword(ctx, ticket.Token, ticket.Code, "NewPassw0rd1"))

	for _, bundle := range []*TokenBundle{a, b} {
		_, err := f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestResetPasswordRollsBack(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	ctx := context.Background()
	ticket, err := f.svc.RequestPasswordReset(ctx, "alice@x.com", DeviceInfo{})
	require.NoError(t, err)

	f.store.FailOn("RevokeAllRefreshTokens", errors.New("deadlock detected"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, ticket.Token, ticket.Code, "NewPassw0rd1"), ErrUnknown)
	f.store.FailOn("RevokeAllRefreshTokens", nil)

	_, err = f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	assert.NoError(t, err, "old password still valid after rollback")
	assert.NoError(t, f.svc.ResetPassword(ctx, ticket.Token, ticket.Code, "NewPassw0rd1"), "token not consumed by rollback")
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()
	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "Passw0rd1", "weak"), ErrWeakPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "Wrong0ld1", "NewPassw0rd1"), ErrWrongOldPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, 12345, "Passw0rd1", "NewPassw0rd1"), ErrUserNotFound)

	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "Passw0rd1", "NewPassw0rd1"))
	_, err = f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.svc.Login(ctx, "alice", "NewPassw0rd1", DeviceInfo{})
	assert.NoError(t, err)

	logs := f.store.SecurityLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "password_change", logs[0].EventType)
}

func TestChangePasswordKeepsSessionsWhenConfigured(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RevokeSessionsOnPasswordChange = false })
	u := f.register(t, alice())
	ctx := context.Background()
	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "Passw0rd1", "NewPassw0rd1"))
	_, err = f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
	assert.NoError(t, err)
}

func TestSetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, RegisterInput{Username: "nopass", Email: "np@x.com"})

	assert.ErrorIs(t, f.svc.SetPassword(ctx, u.ID, "short"), ErrWeakPassword)
	require.NoError(t, f.svc.SetPassword(ctx, u.ID, "Passw0rd1"))
	assert.ErrorIs(t, f.svc.SetPassword(ctx, u.ID, "Passw0rd2"), ErrPasswordAlreadySet)

	_, err := f.svc.Login(ctx, "nopass", "Passw0rd1", DeviceInfo{})
	assert.NoError(t, err)
}

func TestEmailVerification(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()

	raw, err := f.svc.IssueEmailVerification(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.Equal(t, notify.PurposeEmailVerify, f.notifier.last(t).Purpose)

	require.NoError(t, f.svc.VerifyEmail(ctx, raw))
	got, err := f.store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	require.NoError(t, f.svc.VerifyEmail(ctx, raw), "verifying twice is harmless")
	assert.Len(t, f.store.SecurityLogs(), 1)
}

func TestEmailVerificationRejections(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	phoneOnly := f.register(t, RegisterInput{Username: "phoney", Phone: "13700137000"})
	ctx := context.Background()

	_, err := f.svc.IssueEmailVerification(ctx, phoneOnly.ID)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, bundle.AccessToken), ErrInvalidToken)

	raw, err := f.svc.IssueEmailVerification(ctx, u.ID)
	require.NoError(t, err)
	f.clock.Advance(49 * time.Hour)
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, raw), ErrExpiredToken)
}
