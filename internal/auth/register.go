package auth

import (
	"context"
	"strings"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// RegisterInput holds the registration fields. Email, Phone, Password and
// Nickname are optional; at least one of Email and Phone is required.
type RegisterInput struct {
	Username string
	Email    string
	Phone    string
	Password string
	Nickname string
}

func (in *RegisterInput) normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Nickname = strings.TrimSpace(in.Nickname)
}

func (in RegisterInput) validate() error {
	if in.Username == "" {
		return ErrEmptyUsername
	}
	if !user.ValidUsername(in.Username) {
		return ErrInvalidFormat.Withf("username must be 4-20 letters, digits or underscores")
	}
	if in.Email != "" && !user.ValidEmail(in.Email) {
		return ErrInvalidFormat.Withf("invalid email address")
	}
	if in.Phone != "" && !user.ValidPhone(in.Phone) {
		return ErrInvalidFormat.Withf("invalid phone number")
	}
	if in.Email == "" && in.Phone == "" {
		return ErrInvalidFormat.Withf("email or phone is required")
	}
	if in.Password != "" && !user.StrongPassword(in.Password) {
		return ErrWeakPassword
	}
	return nil
}

// duplicateError maps a user uniqueness field to its error.
func duplicateError(field string) (*Error, bool) {
	switch field {
	case store.FieldUsername:
		return ErrDuplicateUsername, true
	case store.FieldEmail:
		return ErrDuplicateEmail, true
	case store.FieldPhone:
		return ErrDuplicatePhone, true
	}
	return nil, false
}

// Register creates an active, unverified user with its profile, settings and
// default role. Nothing is written when validation or a uniqueness check fails.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	checks := []struct{ field, value string }{
		{store.FieldUsername, in.Username},
		{store.FieldEmail, in.Email},
		{store.FieldPhone, in.Phone},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		taken, err := s.store.UserFieldTaken(ctx, c.field, c.value)
		if err != nil {
			return nil, s.fail("register", err)
		}
		if taken {
			e, _ := duplicateError(c.field)
			return nil, e
		}
	}

	u := &entity.User{
		Username: in.Username,
		Email:    opt(in.Email),
		Phone:    opt(in.Phone),
		Status:   entity.StatusActive,
	}
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, s.fail("register", err)
		}
		now := s.now()
		u.PasswordHash = &hash
		u.PasswordUpdatedAt = &now
	}

	err := s.store.InTx(ctx, func(tx store.Repository) error {
		return s.Provision(ctx, tx, u, entity.Profile{Nickname: in.Nickname})
	})
	if err != nil {
		if field, ok := store.IsUnique(err); ok {
			if e, ok := duplicateError(field); ok {
				return nil, e
			}
		}
		return nil, s.fail("register", err)
	}
	s.logger.Infow("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}
