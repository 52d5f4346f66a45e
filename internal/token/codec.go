// Package token signs and verifies the HS256 tokens handed to clients and
// generates the opaque secrets that are persisted server side.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Type tags what a token may be used for.
type Type string

const (
	TypeAccess      Type = "access"
	TypeRefresh     Type = "refresh"
	TypeEmailVerify Type = "email_verify"
)

var (
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token malformed")
	ErrWrongType = errors.New("token type mismatch")
)

// Claims carried by every token. UserID travels as the sub claim.
// Opaque is only set on refresh wrappers; Email only on email verification tokens.
type Claims struct {
	UserID   int64  `json:"-"`
	Username string `json:"username,omitempty"`
	Type     Type   `json:"type"`
	Opaque   string `json:"token,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs with a shared secret. now is the clock used both for iat/exp
// and during validation.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret []byte, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, now: now}
}

// Sign issues a token for c valid for ttl.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.Subject = strconv.FormatInt(claims.UserID, 10)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(c.secret)
}

// Verify checks signature, expiry and the type tag.
func (c *Codec) Verify(raw string, want Type) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.Type != want {
		return nil, ErrWrongType
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", ErrMalformed, claims.Subject)
	}
	claims.UserID = id
	return claims, nil
}

// Opaque returns 32 random bytes, base64url encoded.
func Opaque() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

var codeSpace = big.NewInt(1_000_000)

// NumericCode returns a zero-padded six digit code.
func NumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
