// Package thirdparty signs users in with external identity providers and
// manages the bindings between local users and external identities.
package thirdparty

import (
	"context"
	"errors"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
)

// Identity is what a provider asserts about a user after a successful exchange.
type Identity struct {
	Provider     entity.Provider
	ExternalID   string
	Username     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Nickname     string
	AvatarURL    string
	Email        string
	Gender       string
	// ProfileEmail is a client-supplied email. It is unverified and only
	// kept on the binding.
	ProfileEmail string
}

// Profile is optional user data supplied by the client, e.g. the name and
// email Apple only reveals on first sign-in. It never overrides provider data.
type Profile struct {
	Nickname  string
	AvatarURL string
	Email     string
}

func (id *Identity) merge(p *Profile) {
	if p == nil {
		return
	}
	if id.Nickname == "" {
		id.Nickname = p.Nickname
	}
	if id.AvatarURL == "" {
		id.AvatarURL = p.AvatarURL
	}
	if id.Email == "" {
		id.ProfileEmail = p.Email
	}
}

// IdentityProvider exchanges a provider credential (an authorization code or
// an identity token) for a verified identity.
type IdentityProvider interface {
	Name() entity.Provider
	Exchange(ctx context.Context, credential string) (*Identity, error)
}

// Registry holds the configured providers.
type Registry map[entity.Provider]IdentityProvider

func NewRegistry(providers ...IdentityProvider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

var ErrEmptyCredential = errors.New("thirdparty: empty credential")
