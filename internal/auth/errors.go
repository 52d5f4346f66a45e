package auth

import (
	"errors"
	"fmt"
)

// Code identifies an error kind. Codes are stable and safe to show to clients.
type Code string

const (
	CodeEmptyUsername         Code = "EmptyUsername"
	CodeInvalidFormat         Code = "InvalidFormat"
	CodeWeakPassword          Code = "WeakPassword"
	CodeDuplicateUsername     Code = "DuplicateUsername"
	CodeDuplicateEmail        Code = "DuplicateEmail"
	CodeDuplicatePhone        Code = "DuplicatePhone"
	CodeInvalidCredentials    Code = "InvalidCredentials"
	CodeAccountNotActive      Code = "AccountNotActive"
	CodeInvalidOrExpiredToken Code = "InvalidOrExpiredToken"
	CodeInvalidToken          Code = "InvalidToken"
	CodeExpiredToken          Code = "ExpiredToken"
	CodeUserNotFound          Code = "UserNotFound"
	CodeInvalidTokenOrCode    Code = "InvalidTokenOrCode"
	CodeTokenExpired          Code = "TokenExpired"
	CodeWrongOldPassword      Code = "WrongOldPassword"
	CodePasswordAlreadySet    Code = "PasswordAlreadySet"
	CodeProviderAuthFailed    Code = "ProviderAuthFailed"
	CodeUnsupportedProvider   Code = "UnsupportedProvider"
	CodeAlreadyBound          Code = "AlreadyBound"
	CodeBoundToOtherUser      Code = "BoundToOtherUser"
	CodeProviderSlotTaken     Code = "ProviderSlotTaken"
	CodeNotBound              Code = "NotBound"
	CodeLastCredential        Code = "LastCredential"
	CodeUnknown               Code = "Unknown"
)

// Error is returned by every Service operation. Cause is for logs only.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of e carrying cause.
func (e *Error) With(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

// Withf returns a copy of e with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

var (
	ErrEmptyUsername         = &Error{Code: CodeEmptyUsername, Message: "username must not be empty"}
	ErrInvalidFormat         = &Error{Code: CodeInvalidFormat, Message: "invalid format"}
	ErrWeakPassword          = &Error{Code: CodeWeakPassword, Message: "password must be at least 8 characters and contain upper case, lower case and digits"}
	ErrDuplicateUsername     = &Error{Code: CodeDuplicateUsername, Message: "username already exists"}
	ErrDuplicateEmail        = &Error{Code: CodeDuplicateEmail, Message: "email already registered"}
	ErrDuplicatePhone        = &Error{Code: CodeDuplicatePhone, Message: "phone already registered"}
	ErrInvalidCredentials    = &Error{Code: CodeInvalidCredentials, Message: "invalid username or password"}
	ErrAccountNotActive      = &Error{Code: CodeAccountNotActive, Message: "account is not active"}
	ErrInvalidOrExpiredToken = &Error{Code: CodeInvalidOrExpiredToken, Message: "invalid or expired token"}
	ErrInvalidToken          = &Error{Code: CodeInvalidToken, Message: "invalid token"}
	ErrExpiredToken          = &Error{Code: CodeExpiredToken, Message: "token expired"}
	ErrUserNotFound          = &Error{Code: CodeUserNotFound, Message: "user not found"}
	ErrInvalidTokenOrCode    = &Error{Code: CodeInvalidTokenOrCode, Message: "invalid token or verification code"}
	ErrTokenExpired          = &Error{Code: CodeTokenExpired, Message: "reset token expired"}
	ErrWrongOldPassword      = &Error{Code: CodeWrongOldPassword, Message: "old password is incorrect"}
	ErrPasswordAlreadySet    = &Error{Code: CodePasswordAlreadySet, Message: "password already set"}
	ErrProviderAuthFailed    = &Error{Code: CodeProviderAuthFailed, Message: "third-party authentication failed"}
	ErrUnsupportedProvider   = &Error{Code: CodeUnsupportedProvider, Message: "unsupported provider"}
	ErrAlreadyBound          = &Error{Code: CodeAlreadyBound, Message: "this account is already bound"}
	ErrBoundToOtherUser      = &Error{Code: CodeBoundToOtherUser, Message: "this third-party account is bound to another user"}
	ErrProviderSlotTaken     = &Error{Code: CodeProviderSlotTaken, Message: "another account of this provider is already bound"}
	ErrNotBound              = &Error{Code: CodeNotBound, Message: "no binding for this provider"}
	ErrLastCredential        = &Error{Code: CodeLastCredential, Message: "cannot unbind the only way to sign in; set a password first"}
	ErrUnknown               = &Error{Code: CodeUnknown, Message: "operation failed, please try again later"}
)

// Unknown wraps an unexpected failure.
func Unknown(cause error) *Error { return ErrUnknown.With(cause) }

// AsError converts any error into an *Error. Errors that are not *Error become Unknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Unknown(err)
}
