package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	auditentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/token/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

const bearer = "Bearer"

// TokenBundle is returned by every login.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// AccessBundle is returned by RefreshAccessToken. The refresh token is not rotated.
type AccessBundle struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login authenticates by username, email or phone. Unknown identifiers and
// wrong passwords fail identically with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string, d DeviceInfo) (*TokenBundle, error) {
	identifier = strings.TrimSpace(identifier)
	u, err := s.store.FindUserByLogin(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		s.hasher.Verify(s.dummyHash, password)
		s.audit.LoginFailed(ctx, nil, LoginTypePassword, "user not found", d)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, s.fail("login", err)
	}
	if !u.HasPassword() || !s.hasher.Verify(*u.PasswordHash, password) {
		s.audit.LoginFailed(ctx, &u.ID, LoginTypePassword, "wrong password", d)
		return nil, ErrInvalidCredentials
	}
	if u.Status != entity.StatusActive {
		s.audit.LoginFailed(ctx, &u.ID, LoginTypePassword, "account "+u.Status, d)
		return nil, ErrAccountNotActive.Withf("account is %s", u.Status)
	}
	return s.IssueSession(ctx, u, LoginTypePassword, d, nil)
}

// IssueSession signs a token bundle for u, persists the refresh token and
// bumps the login counters in one transaction. within, when set, runs on the
// same transaction first. A successful login history row is written after commit.
func (s *Service) IssueSession(ctx context.Context, u *entity.User, loginType string, d DeviceInfo, within func(tx store.Repository) error) (*TokenBundle, error) {
	opaque, err := token.Opaque()
	if err != nil {
		return nil, s.fail("issue_session", err)
	}
	access, err := s.signAccess(u)
	if err != nil {
		return nil, s.fail("issue_session", err)
	}
	refresh, err := s.codec.Sign(token.Claims{UserID: u.ID, Type: token.TypeRefresh, Opaque: opaque}, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, s.fail("issue_session", err)
	}

	now := s.now()
	row := &tokenentity.RefreshToken{
		ID:         s.ids.Next(),
		UserID:     u.ID,
		Token:      opaque,
		TokenType:  string(token.TypeRefresh),
		ExpiresAt:  now.Add(s.cfg.RefreshTokenTTL),
		DeviceID:   opt(d.DeviceID),
		DeviceType: opt(d.DeviceType),
		DeviceName: opt(d.DeviceName),
		IPAddress:  opt(d.IPAddress),
		UserAgent:  opt(d.UserAgent),
		CreatedAt:  now,
	}
	err = s.store.InTx(ctx, func(tx store.Repository) error {
		if within != nil {
			if err := within(tx); err != nil {
				return err
			}
		}
		if err := tx.CreateRefreshToken(ctx, row); err != nil {
			return err
		}
		return tx.RecordLogin(ctx, u.ID, now)
	})
	if err != nil {
		return nil, s.fail("issue_session", err)
	}
	s.audit.LoginSucceeded(ctx, u.ID, loginType, d)
	return &TokenBundle{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    bearer,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) signAccess(u *entity.User) (string, error) {
	return s.codec.Sign(token.Claims{UserID: u.ID, Username: u.Username, Type: token.TypeAccess}, s.cfg.AccessTokenTTL)
}

// RefreshAccessToken exchanges a refresh wrapper for a new access token.
func (s *Service) RefreshAccessToken(ctx context.Context, wrapper string) (*AccessBundle, error) {
	claims, err := s.codec.Verify(wrapper, token.TypeRefresh)
	if err != nil || claims.Opaque == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	row, err := s.store.FindActiveRefreshToken(ctx, claims.UserID, claims.Opaque)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	now := s.now()
	if !row.ExpiresAt.After(now) {
		return nil, ErrExpiredToken
	}
	u, err := s.liveUser(ctx, s.store, claims.UserID)
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	access, err := s.signAccess(u)
	if err != nil {
		return nil, s.fail("refresh", err)
	}
	if err := s.store.TouchRefreshToken(ctx, row.ID, now); err != nil {
		return nil, s.fail("refresh", err)
	}
	return &AccessBundle{AccessToken: access, TokenType: bearer, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

// Logout revokes the session of wrapper, or every session of userID when
// wrapper is empty. Revoking an unknown or foreign session is a no-op.
func (s *Service) Logout(ctx context.Context, userID int64, wrapper string) error {
	now := s.now()
	if wrapper == "" {
		n, err := s.store.RevokeAllRefreshTokens(ctx, userID, now)
		if err != nil {
			return s.fail("logout", err)
		}
		s.audit.Security(ctx, userID, auditentity.EventLogoutAll, fmt.Sprintf("revoked %d sessions", n))
		return nil
	}

	claims, err := s.codec.Verify(wrapper, token.TypeRefresh)
	if err != nil {
		return ErrInvalidOrExpiredToken
	}
	if claims.UserID != userID {
		return nil
	}
	row, err := s.store.FindRefreshToken(ctx, userID, claims.Opaque)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.fail("logout", err)
	}
	if err := s.store.RevokeRefreshToken(ctx, row.ID, now); err != nil {
		return s.fail("logout", err)
	}
	return nil
}

// Authenticate resolves an access token to an active user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*entity.User, error) {
	claims, err := s.codec.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return nil, ErrInvalidOrExpiredToken
	}
	u, err := s.liveUser(ctx, s.store, claims.UserID)
	if err != nil {
		return nil, s.fail("authenticate", err)
	}
	if u.Status != entity.StatusActive {
		return nil, ErrAccountNotActive.Withf("account is %s", u.Status)
	}
	return u, nil
}

// HasRole reports whether userID holds any of roles.
func (s *Service) HasRole(ctx context.Context, userID int64, roles ...string) (bool, error) {
	held, err := s.store.ListRoles(ctx, userID)
	if err != nil {
		return false, s.fail("has_role", err)
	}
	for _, h := range held {
		for _, r := range roles {
			if h == r {
				return true, nil
			}
		}
	}
	return false, nil
}
