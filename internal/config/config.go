// Package config loads the process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

const (
	EnvProduction = "production"

	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Providers groups the identity provider settings.
type Providers struct {
	Wechat   thirdparty.WechatConfig
	Apple    thirdparty.AppleConfig
	Google   thirdparty.OAuthConfig `envPrefix:"GOOGLE_"`
	Facebook thirdparty.OAuthConfig `envPrefix:"FACEBOOK_"`
}

type Config struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	SnowflakeNode int64  `env:"SNOWFLAKE_NODE" envDefault:"1"`

	Log       utilities.LogConfig
	Database  database.Config
	Auth      auth.Config
	Providers Providers
	Postmark  notify.PostmarkConfig
}

func (c Config) Production() bool { return c.Env == EnvProduction }

// Validate rejects configurations that must never start.
func (c Config) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.Production() && c.Auth.ExposeResetToken {
		return errors.New("EXPOSE_RESET_TOKEN must not be enabled in production")
	}
	switch c.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Production() && c.StoreDriver == DriverMemory {
		return errors.New("STORE_DRIVER=memory is not allowed in production")
	}
	return nil
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
