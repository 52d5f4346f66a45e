package thirdparty

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	auditentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// Service signs users in through external providers and manages bindings.
// Sessions are issued by the auth core so both login paths share one token model.
type Service struct {
	auth      *auth.Service
	store     store.Store
	providers Registry
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewService(authSvc *auth.Service, st store.Store, providers Registry, logger *zap.SugaredLogger, now func() time.Time) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{auth: authSvc, store: st, providers: providers, logger: logger, now: now}
}

// Providers lists the configured provider names in order.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for p := range s.providers {
		names = append(names, p.String())
	}
	sort.Strings(names)
	return names
}

func (s *Service) fail(op string, err error) error {
	var e *auth.Error
	if errors.As(err, &e) {
		return e
	}
	s.logger.Errorw("third-party operation failed", "op", op, "error", err)
	return auth.Unknown(err)
}

func (s *Service) exchange(ctx context.Context, provider entity.Provider, credential string) (*Identity, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, auth.ErrUnsupportedProvider.Withf("unsupported provider %q", provider)
	}
	id, err := p.Exchange(ctx, credential)
	if err != nil {
		s.logger.Warnw("provider exchange failed", "provider", provider, "error", err)
		return nil, auth.ErrProviderAuthFailed.With(err)
	}
	id.Provider = provider
	return id, nil
}

// Login signs in with a provider credential, creating the local user and
// binding on first use.
func (s *Service) Login(ctx context.Context, provider entity.Provider, credential string, hint *Profile, d auth.DeviceInfo) (*auth.TokenBundle, error) {
	id, err := s.exchange(ctx, provider, credential)
	if err != nil {
		if errors.Is(err, auth.ErrProviderAuthFailed) {
			s.auth.Audit().LoginFailed(ctx, nil, provider.String(), "provider exchange failed", d)
		}
		return nil, err
	}
	id.merge(hint)

	acct, err := s.store.FindAccount(ctx, provider, id.ExternalID)
	if errors.Is(err, store.ErrNotFound) {
		var created *entity.Account
		created, err = s.provision(ctx, id)
		if err != nil {
			return nil, s.fail("login", err)
		}
		if created != nil {
			u, err := s.store.GetUser(ctx, created.UserID)
			if err != nil {
				return nil, s.fail("login", err)
			}
			return s.auth.IssueSession(ctx, u, provider.String(), d, nil)
		}
		// bound concurrently by another request
		acct, err = s.store.FindAccount(ctx, provider, id.ExternalID)
	}
	if err != nil {
		return nil, s.fail("login", err)
	}

	u, err := s.store.GetUser(ctx, acct.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && u.IsDeleted) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, s.fail("login", err)
	}
	if u.Status != userentity.StatusActive {
		s.auth.Audit().LoginFailed(ctx, &u.ID, provider.String(), "account "+u.Status, d)
		return nil, auth.ErrAccountNotActive.Withf("account is %s", u.Status)
	}
	refreshCache(acct, id, s.now())
	return s.auth.IssueSession(ctx, u, provider.String(), d, func(tx store.Repository) error {
		return tx.UpdateAccountLogin(ctx, acct)
	})
}

// WechatLogin signs in with a WeChat authorization code.
func (s *Service) WechatLogin(ctx context.Context, code string, d auth.DeviceInfo) (*auth.TokenBundle, error) {
	return s.Login(ctx, entity.ProviderWechat, code, nil, d)
}

// AppleLogin signs in with an Apple identity token. hint carries the name and
// email the client received on first authorization.
func (s *Service) AppleLogin(ctx context.Context, idToken string, hint *Profile, d auth.DeviceInfo) (*auth.TokenBundle, error) {
	return s.Login(ctx, entity.ProviderApple, idToken, hint, d)
}

func opt(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func refreshCache(a *entity.Account, id *Identity, now time.Time) {
	a.AccessToken = opt(id.AccessToken)
	a.RefreshToken = opt(id.RefreshToken)
	a.ExpiresAt = id.ExpiresAt
	if id.Nickname != "" {
		a.Nickname = opt(id.Nickname)
	}
	if id.AvatarURL != "" {
		a.AvatarURL = opt(id.AvatarURL)
	}
	switch {
	case id.Email != "":
		a.Email = opt(id.Email)
	case id.ProfileEmail != "":
		a.Email = opt(id.ProfileEmail)
	}
	a.LastLoginAt = &now
	a.UpdatedAt = now
}

func (s *Service) newAccount(userID int64, id *Identity) *entity.Account {
	now := s.now()
	a := &entity.Account{
		ID:               s.auth.NextID(),
		UserID:           userID,
		Provider:         id.Provider,
		ProviderUserID:   id.ExternalID,
		ProviderUsername: opt(id.Username),
		IsBound:          true,
		CreatedAt:        now,
	}
	refreshCache(a, id, now)
	return a
}

// SyntheticUsername derives the local username of a provider-created user.
func SyntheticUsername(p entity.Provider, externalID string) string {
	prefix := map[entity.Provider]string{
		entity.ProviderWechat:   "wx_",
		entity.ProviderApple:    "apple_",
		entity.ProviderGoogle:   "google_",
		entity.ProviderFacebook: "fb_",
	}[p]
	if prefix == "" {
		prefix = p.String() + "_"
	}
	id := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, externalID)
	if len(id) > 16 {
		id = id[:16]
	}
	return prefix + id
}

// provision creates a verified, password-less user and its binding. It
// returns a nil account when a concurrent request bound the identity first.
func (s *Service) provision(ctx context.Context, id *Identity) (*entity.Account, error) {
	username := SyntheticUsername(id.Provider, id.ExternalID)
	var email *string
	if id.Email != "" {
		taken, err := s.store.UserFieldTaken(ctx, store.FieldEmail, id.Email)
		if err != nil {
			return nil, err
		}
		if !taken {
			email = opt(id.Email)
		}
	}

	suffixed := false
	for attempt := 0; ; attempt++ {
		u := &userentity.User{
			Username: username,
			Email:    email,
			Status:   userentity.StatusActive,
			Verified: true,
		}
		var acct *entity.Account
		err := s.store.InTx(ctx, func(tx store.Repository) error {
			profile := userentity.Profile{Nickname: id.Nickname, AvatarURL: opt(id.AvatarURL), Gender: opt(id.Gender)}
			if err := s.auth.Provision(ctx, tx, u, profile); err != nil {
				return err
			}
			acct = s.newAccount(u.ID, id)
			return tx.CreateAccount(ctx, acct)
		})
		field, unique := store.IsUnique(err)
		switch {
		case err == nil:
			s.logger.Infow("user created from provider", "user_id", u.ID, "provider", id.Provider)
			return acct, nil
		case unique && field == store.FieldProviderIdentity:
			return nil, nil
		case unique && field == store.FieldEmail:
			email = nil
		case unique && field == store.FieldUsername && !suffixed:
			username = fmt.Sprintf("%s_%d", username, s.auth.NextID()%100000)
			suffixed = true
		case unique && field == store.FieldUsername:
			return nil, auth.ErrDuplicateUsername
		default:
			return nil, err
		}
		if attempt >= 2 {
			return nil, err
		}
	}
}

// Bind links a provider identity to userID.
func (s *Service) Bind(ctx context.Context, userID int64, provider entity.Provider, credential string) error {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && u.IsDeleted) {
		return auth.ErrUserNotFound
	}
	if err != nil {
		return s.fail("bind", err)
	}
	id, err := s.exchange(ctx, provider, credential)
	if err != nil {
		return err
	}

	if err := s.checkBindable(ctx, userID, id); err != nil {
		return err
	}
	err = s.store.CreateAccount(ctx, s.newAccount(userID, id))
	if field, ok := store.IsUnique(err); ok {
		if field == store.FieldProviderSlot {
			return auth.ErrProviderSlotTaken
		}
		return s.checkBindable(ctx, userID, id)
	}
	if err != nil {
		return s.fail("bind", err)
	}
	s.auth.Audit().Security(ctx, userID, auditentity.EventAccountBind, "bound "+provider.String())
	return nil
}

// checkBindable rejects identities that are already bound and users that
// already hold a binding of the provider.
func (s *Service) checkBindable(ctx context.Context, userID int64, id *Identity) error {
	existing, err := s.store.FindAccount(ctx, id.Provider, id.ExternalID)
	switch {
	case err == nil && existing.UserID == userID:
		return auth.ErrAlreadyBound
	case err == nil:
		return auth.ErrBoundToOtherUser
	case !errors.Is(err, store.ErrNotFound):
		return s.fail("bind", err)
	}
	_, err = s.store.FindAccountForUser(ctx, userID, id.Provider)
	switch {
	case err == nil:
		return auth.ErrProviderSlotTaken
	case !errors.Is(err, store.ErrNotFound):
		return s.fail("bind", err)
	}
	return nil
}

// Unbind removes the user's binding of provider unless it is the user's
// only way to sign in.
func (s *Service) Unbind(ctx context.Context, userID int64, provider entity.Provider) error {
	err := s.store.InTx(ctx, func(tx store.Repository) error {
		acct, err := tx.FindAccountForUser(ctx, userID, provider)
		if errors.Is(err, store.ErrNotFound) {
			return auth.ErrNotBound
		}
		if err != nil {
			return err
		}
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !u.HasPassword() {
			others, err := tx.CountOtherAccounts(ctx, userID, acct.ID)
			if err != nil {
				return err
			}
			if others == 0 {
				return auth.ErrLastCredential
			}
		}
		return tx.UnbindAccount(ctx, acct.ID, s.now())
	})
	if err != nil {
		return s.fail("unbind", err)
	}
	s.auth.Audit().Security(ctx, userID, auditentity.EventAccountUnbind, "unbound "+provider.String())
	return nil
}
