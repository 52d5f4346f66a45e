package thirdparty

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
)

// AppleIssuer is the iss claim of every Apple identity token.
const AppleIssuer = "https://appleid.apple.com"

// AppleConfig configures Sign in with Apple.
type AppleConfig struct {
	ClientID string `env:"APPLE_CLIENT_ID"`
	KeysURL  string `env:"APPLE_KEYS_URL" envDefault:"https://appleid.apple.com/auth/keys"`
}

func (c AppleConfig) Enabled() bool { return c.ClientID != "" }

// AppleKeysRefetchInterval is the minimum time between two fetches of
// Apple's key set.
const AppleKeysRefetchInterval = time.Minute

// AppleProvider verifies Apple identity tokens against Apple's published
// keys. Keys are cached by kid. An unknown kid triggers a refetch at most
// once per AppleKeysRefetchInterval.
type AppleProvider struct {
	cfg    AppleConfig
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewAppleProvider(cfg AppleConfig, client *http.Client, now func() time.Time) *AppleProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	if cfg.KeysURL == "" {
		cfg.KeysURL = "https://appleid.apple.com/auth/keys"
	}
	return &AppleProvider{cfg: cfg, client: client, now: now, keys: map[string]*rsa.PublicKey{}}
}

func (p *AppleProvider) Name() entity.Provider { return entity.ProviderApple }

type appleClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("jwk %s modulus: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %s exponent: %w", k.Kid, err)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}

func (p *AppleProvider) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.KeysURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apple keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apple keys: http %d", resp.StatusCode)
	}
	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("apple keys: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			return nil, err
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

func (p *AppleProvider) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	p.mu.Lock()
	if k, ok := p.keys[kid]; ok {
		p.mu.Unlock()
		return k, nil
	}
	now := p.now()
	if !p.fetchedAt.IsZero() && now.Sub(p.fetchedAt) < AppleKeysRefetchInterval {
		p.mu.Unlock()
		return nil, fmt.Errorf("apple keys: unknown kid %q", kid)
	}
	// claim the fetch slot so concurrent misses do not fetch too
	p.fetchedAt = now
	p.mu.Unlock()

	keys, err := p.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = keys
	if k, ok := keys[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("apple keys: unknown kid %q", kid)
}

// Exchange verifies idToken and returns its subject.
func (p *AppleProvider) Exchange(ctx context.Context, idToken string) (*Identity, error) {
	if idToken == "" {
		return nil, ErrEmptyCredential
	}
	claims := &appleClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("apple token: missing kid")
		}
		return p.key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(AppleIssuer),
		jwt.WithAudience(p.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("apple token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("apple token: missing sub")
	}
	return &Identity{Provider: entity.ProviderApple, ExternalID: claims.Subject, Email: claims.Email}, nil
}
