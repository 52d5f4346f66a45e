package auth

import (
	"errors"
	"time"
)

// Config holds the token secret, lifetimes and password policy knobs.
type Config struct {
	JWTSecret       string        `env:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	ResetTokenTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	EmailVerifyTTL  time.Duration `env:"EMAIL_VERIFY_TTL" envDefault:"48h"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
	// ExposeResetToken returns reset and verification tokens to the caller.
	// Never enabled in production.
	ExposeResetToken bool `env:"EXPOSE_RESET_TOKEN"`
	// RevokeSessionsOnPasswordChange makes ChangePassword log out every device.
	RevokeSessionsOnPasswordChange bool `env:"REVOKE_SESSIONS_ON_PASSWORD_CHANGE" envDefault:"true"`
}

// MinSecretLength is the shortest accepted JWT_SECRET in bytes.
const MinSecretLength = 32

func (c Config) Validate() error {
	if len(c.JWTSecret) < MinSecretLength {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 || c.ResetTokenTTL <= 0 || c.EmailVerifyTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}

// DefaultConfig returns the production lifetimes with the given secret.
func DefaultConfig(secret string) Config {
	return Config{
		JWTSecret:                      secret,
		AccessTokenTTL:                 24 * time.Hour,
		RefreshTokenTTL:                30 * 24 * time.Hour,
		ResetTokenTTL:                  time.Hour,
		EmailVerifyTTL:                 48 * time.Hour,
		BcryptCost:                     12,
		RevokeSessionsOnPasswordChange: true,
	}
}
