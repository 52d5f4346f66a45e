// Package auth implements registration, password login, session tokens and
// the password reset and change flows. Every operation returns an *Error on
// failure; Outcome turns results into the tagged shape transport layers send.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/audit"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/notify"
	settingentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// DeviceInfo describes the client of a login.
type DeviceInfo = audit.Device

// Login types recorded in login history.
const (
	LoginTypePassword = "password"
)

// Deps are the collaborators of a Service. Hasher, Notifier and Clock are optional.
type Deps struct {
	Store    store.Store
	IDs      *utilities.IDGenerator
	Logger   *zap.SugaredLogger
	Hasher   user.PasswordHasher
	Notifier notify.Dispatcher
	Clock    func() time.Time
}

// Service is the auth core.
type Service struct {
	cfg      Config
	store    store.Store
	ids      *utilities.IDGenerator
	logger   *zap.SugaredLogger
	hasher   user.PasswordHasher
	notifier notify.Dispatcher
	codec    *token.Codec
	audit    *audit.Recorder
	now      func() time.Time
	// dummyHash is verified against when no user matches so both login
	// failures cost one hash comparison.
	dummyHash string
}

func NewService(cfg Config, d Deps) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Store == nil || d.IDs == nil {
		return nil, errors.New("auth: store and id generator are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Hasher == nil {
		d.Hasher = user.BcryptHasher{Cost: cfg.BcryptCost}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Noop{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	dummy, err := d.Hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("auth: hasher: %w", err)
	}
	return &Service{
		cfg:       cfg,
		store:     d.Store,
		ids:       d.IDs,
		logger:    d.Logger,
		hasher:    d.Hasher,
		notifier:  d.Notifier,
		codec:     token.NewCodec([]byte(cfg.JWTSecret), d.Clock),
		audit:     audit.NewRecorder(d.Store, d.Logger, d.Clock),
		now:       d.Clock,
		dummyHash: dummy,
	}, nil
}

// NextID hands out a primary key from the service's generator.
func (s *Service) NextID() int64 { return s.ids.Next() }

// Audit exposes the recorder so adapters write to the same sink.
func (s *Service) Audit() *audit.Recorder { return s.audit }

// fail logs an unexpected error and wraps it as Unknown. Known *Error values pass through.
func (s *Service) fail(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	s.logger.Errorw("auth operation failed", "op", op, "error", err)
	return Unknown(err)
}

// Provision writes a new user together with its profile, default settings
// and default role on tx. u.ID is assigned when zero.
func (s *Service) Provision(ctx context.Context, tx store.Repository, u *entity.User, p entity.Profile) error {
	now := s.now()
	if u.ID == 0 {
		u.ID = s.ids.Next()
	}
	u.CreatedAt, u.UpdatedAt = now, now
	if err := tx.CreateUser(ctx, u); err != nil {
		return err
	}
	p.ID, p.UserID, p.CreatedAt = s.ids.Next(), u.ID, now
	if p.Nickname == "" {
		p.Nickname = u.Username
	}
	if err := tx.CreateProfile(ctx, &p); err != nil {
		return err
	}
	if err := tx.CreateSetting(ctx, settingentity.NewDefaultSetting(s.ids.Next(), u.ID, now)); err != nil {
		return err
	}
	return tx.CreateRole(ctx, &entity.Role{ID: s.ids.Next(), UserID: u.ID, Role: entity.RoleUser, CreatedAt: now})
}

// liveUser loads a user that exists and is not soft-deleted.
func (s *Service) liveUser(ctx context.Context, repo store.Users, id int64) (*entity.User, error) {
	u, err := repo.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && u.IsDeleted) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Service) checkPassword(pw string) error {
	if !user.StrongPassword(pw) {
		return ErrWeakPassword
	}
	return nil
}

func opt(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
