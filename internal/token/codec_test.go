package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestSignVerifyRoundTrip(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCodec(secret, clk.Now)

	raw, err := c.Sign(Claims{UserID: 42, Username: "alice", Type: TypeAccess}, time.Hour)
	require.NoError(t, err)

	got, err := c.Verify(raw, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "42", got.Subject)
	assert.Equal(t, clk.t.Add(time.Hour).Unix(), got.ExpiresAt.Unix())
	assert.Equal(t, clk.t.Unix(), got.IssuedAt.Unix())
}

func TestVerifyExpired(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCodec(secret, clk.Now)
	raw, err := c.Sign(Claims{UserID: 1, Type: TypeRefresh, Opaque: "x"}, time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(2 * time.Minute)
	_, err = c.Verify(raw, TypeRefresh)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyWrongType(t *testing.T) {
	c := NewCodec(secret, nil)
	raw, err := c.Sign(Claims{UserID: 1, Type: TypeAccess}, time.Hour)
	require.NoError(t, err)
	_, err = c.Verify(raw, TypeRefresh)
	assert.ErrorIs(t, err, ErrWrongType)
}

func TestVerifyRejectsForeignSignatureAndGarbage(t *testing.T) {
	c := NewCodec(secret, nil)
	other := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), nil)
	raw, err := other.Sign(Claims{UserID: 1, Type: TypeAccess}, time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(raw, TypeAccess)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = c.Verify("not.a.token", TypeAccess)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	c := NewCodec(secret, nil)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		Type:             TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	raw, err := tok.SignedString(secret)
	require.NoError(t, err)
	_, err = c.Verify(raw, TypeAccess)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOpaqueAndCode(t *testing.T) {
	a, err := Opaque()
	require.NoError(t, err)
	b, err := Opaque()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)

	for i := 0; i < 50; i++ {
		code, err := NumericCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.Empty(t, strings.Trim(code, "0123456789"))
	}
}
