package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrAccountNotActive.Withf("account is suspended"))
	assert.ErrorIs(t, err, ErrAccountNotActive)
	assert.NotErrorIs(t, err, ErrUserNotFound)

	cause := errors.New("pq: connection refused")
	u := Unknown(cause)
	assert.ErrorIs(t, u, ErrUnknown)
	assert.ErrorIs(t, u, cause)
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))
	assert.Equal(t, CodeUnknown, AsError(errors.New("x")).Code)
	assert.Equal(t, CodeNotBound, AsError(ErrNotBound).Code)
}

func TestOutcome(t *testing.T) {
	ok := Outcome(42, nil, "done")
	assert.Equal(t, Result[int]{OK: true, Message: "done", Payload: 42}, ok)

	failed := Outcome(0, Unknown(errors.New("secret dsn in message")), "done")
	assert.False(t, failed.OK)
	assert.Equal(t, CodeUnknown, failed.Code)
	assert.Equal(t, ErrUnknown.Message, failed.Message)

	plain := Outcome(0, errors.New("raw"), "done")
	assert.Equal(t, ErrUnknown.Message, plain.Message)
}

func TestDoRecoversPanics(t *testing.T) {
	res := Do("done", func() (string, error) { panic("nil map") })
	assert.False(t, res.OK)
	assert.Equal(t, CodeUnknown, res.Code)

	res = Do("done", func() (string, error) { return "v", nil })
	assert.True(t, res.OK)
	assert.Equal(t, "v", res.Payload)
}
