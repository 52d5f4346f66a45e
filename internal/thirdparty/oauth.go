package thirdparty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
)

// OAuthConfig holds an OAuth2 client registration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

func (c OAuthConfig) Enabled() bool { return c.ClientID != "" && c.ClientSecret != "" }

// OAuthProvider runs the authorization code exchange and reads the
// provider's userinfo endpoint with the resulting token.
type OAuthProvider struct {
	name        entity.Provider
	conf        *oauth2.Config
	userinfoURL string
	parse       func([]byte) (*Identity, error)
}

func NewOAuthProvider(name entity.Provider, conf *oauth2.Config, userinfoURL string, parse func([]byte) (*Identity, error)) *OAuthProvider {
	return &OAuthProvider{name: name, conf: conf, userinfoURL: userinfoURL, parse: parse}
}

const (
	GoogleUserinfoURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	FacebookUserinfoURL = "https://graph.facebook.com/me?fields=id,name,email,picture"
)

func NewGoogleProvider(cfg OAuthConfig) *OAuthProvider {
	return NewOAuthProvider(entity.ProviderGoogle, &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}, GoogleUserinfoURL, ParseGoogleUser)
}

func NewFacebookProvider(cfg OAuthConfig) *OAuthProvider {
	return NewOAuthProvider(entity.ProviderFacebook, &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     facebook.Endpoint,
		Scopes:       []string{"email", "public_profile"},
	}, FacebookUserinfoURL, ParseFacebookUser)
}

func (p *OAuthProvider) Name() entity.Provider { return p.name }

func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	if code == "" {
		return nil, ErrEmptyCredential
	}
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange: %w", p.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s userinfo: http %d", p.name, resp.StatusCode)
	}
	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%s userinfo: %w", p.name, err)
	}
	id, err := p.parse(body)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo: %w", p.name, err)
	}
	if id.ExternalID == "" {
		return nil, fmt.Errorf("%s userinfo: missing subject", p.name)
	}
	id.Provider = p.name
	id.AccessToken = tok.AccessToken
	id.RefreshToken = tok.RefreshToken
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		id.ExpiresAt = &exp
	}
	return id, nil
}

func ParseGoogleUser(b []byte) (*Identity, error) {
	var u struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &Identity{ExternalID: u.Sub, Email: u.Email, Nickname: u.Name, AvatarURL: u.Picture}, nil
}

func ParseFacebookUser(b []byte) (*Identity, error) {
	var u struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &Identity{ExternalID: u.ID, Email: u.Email, Nickname: u.Name, AvatarURL: u.Picture.Data.URL}, nil
}
