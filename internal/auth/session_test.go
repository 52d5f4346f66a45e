package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

func TestLoginByEveryIdentifier(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, RegisterInput{Username: "alice", Email: "alice@x.com", Phone: "13800138000", Password: "Passw0rd1"})
	ctx := context.Background()

	for _, id := range []string{"alice", "alice@x.com", "13800138000"} {
		_, err := f.svc.Login(ctx, id, "Passw0rd1", DeviceInfo{DeviceID: "dev-1", IPAddress: "10.0.0.1"})
		require.NoError(t, err, id)
	}

	rows := f.store.RefreshTokensFor(u.ID)
	require.Len(t, rows, 3)
	assert.Equal(t, "dev-1", *rows[0].DeviceID)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), rows[0].ExpiresAt)

	got, err := f.store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.LoginCount)
	assert.NotNil(t, got.LastLoginAt)

	hist := f.store.LoginHistory()
	require.Len(t, hist, 3)
	assert.True(t, hist[0].IsSuccess)
	assert.Equal(t, LoginTypePassword, hist[0].LoginType)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, "nonexistent", "whatever", DeviceInfo{})
	_, errWrong := f.svc.Login(ctx, "alice", "wrongpassword", DeviceInfo{})

	assert.Equal(t, Outcome[*TokenBundle](nil, errUnknown, ""), Outcome[*TokenBundle](nil, errWrong, ""))
	assert.Equal(t, errUnknown.Error(), errWrong.Error())

	hist := f.store.LoginHistory()
	require.Len(t, hist, 2)
	assert.Nil(t, hist[0].UserID)
	assert.Equal(t, u.ID, *hist[1].UserID)
	assert.False(t, hist[1].IsSuccess)

	got, err := f.store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.LoginCount)
	assert.Empty(t, f.store.RefreshTokensFor(u.ID))
}

func TestLoginWithoutPasswordHash(t *testing.T) {
	f := newFixture(t)
	f.register(t, RegisterInput{Username: "nopass", Email: "np@x.com"})
	_, err := f.svc.Login(context.Background(), "nopass", "", DeviceInfo{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	f.store.SetUserStatus(u.ID, entity.StatusSuspended)

	_, err := f.svc.Login(context.Background(), "alice", "Passw0rd1", DeviceInfo{})
	assert.ErrorIs(t, err, ErrAccountNotActive)
	assert.Contains(t, AsError(err).Message, "suspended")
	assert.Empty(t, f.store.RefreshTokensFor(u.ID))
}

func TestLoginSurvivesAuditFailure(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	f.store.FailOn("AppendLoginHistory", errors.New("audit table locked"))

	_, err := f.svc.Login(context.Background(), "alice", "Passw0rd1", DeviceInfo{})
	assert.NoError(t, err)
}

func TestLoginRollsBackSession(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	f.store.FailOn("RecordLogin", errors.New("boom"))

	_, err := f.svc.Login(context.Background(), "alice", "Passw0rd1", DeviceInfo{})
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Empty(t, f.store.RefreshTokensFor(u.ID))
}

func TestRefreshCountsUse(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()
	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
	require.NoError(t, err)

	rows := f.store.RefreshTokensFor(u.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].UseCount)
	assert.Equal(t, f.clock.Now(), *rows[0].LastUsedAt)
}

func TestRefreshRejections(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()
	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	_, err = f.svc.RefreshAccessToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	_, err = f.svc.RefreshAccessToken(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	forged, err := f.svc.codec.Sign(token.Claims{UserID: u.ID, Type: token.TypeRefresh, Opaque: "not-persisted"}, time.Hour)
	require.NoError(t, err)
	_, err = f.svc.RefreshAccessToken(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.store.SetRefreshExpiry(u.ID, f.clock.Now().Add(-time.Second))
	_, err = f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRefreshWrapperExpiry(t *testing.T) {
	f := newFixture(t)
	f.register(t, alice())
	ctx := context.Background()
	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestRefreshDeletedUser(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()
	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	f.store.SoftDeleteUser(u.ID, f.clock.Now())
	_, err = f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLogoutEverywhere(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()
	a, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{DeviceID: "phone"})
	require.NoError(t, err)
	b, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{DeviceID: "tablet"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, u.ID, ""))
	for _, bundle := range []*TokenBundle{a, b} {
		_, err := f.svc.RefreshAccessToken(ctx, bundle.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	logs := f.store.SecurityLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "logout_all", logs[0].EventType)
}

func TestLogoutIsIdempotentAndScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, alice())
	bob := f.register(t, RegisterInput{Username: "bobby", Email: "bob@x.com", Password: "Passw0rd1"})

	a, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, bob.ID, a.RefreshToken))
	_, err = f.svc.RefreshAccessToken(ctx, a.RefreshToken)
	assert.NoError(t, err, "another user's logout must not revoke the session")

	assert.Empty(t, f.store.RefreshTokensFor(bob.ID))

	claims, err := f.svc.codec.Verify(a.RefreshToken, token.TypeRefresh)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, claims.UserID, a.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, claims.UserID, a.RefreshToken))

	assert.ErrorIs(t, f.svc.Logout(ctx, claims.UserID, "garbage"), ErrInvalidOrExpiredToken)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, alice())
	ctx := context.Background()
	bundle, err := f.svc.Login(ctx, "alice", "Passw0rd1", DeviceInfo{})
	require.NoError(t, err)

	got, err := f.svc.Authenticate(ctx, bundle.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = f.svc.Authenticate(ctx, bundle.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	f.store.SetUserStatus(u.ID, entity.StatusInactive)
	_, err = f.svc.Authenticate(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, ErrAccountNotActive)

	f.store.SetUserStatus(u.ID, entity.StatusActive)
	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.Authenticate(ctx, bundle.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}
