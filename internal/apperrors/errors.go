package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// ErrInvalidCredentials covers both unknown user and wrong password,
	// so the caller never learns which part failed
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")

	ErrTokenInvalid  = errors.New("refresh token invalid")
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenReuse is raised when an already-consumed refresh token is
	// presented again. Every valid session of the owner is revoked before
	// this error is returned.
	ErrTokenReuse = errors.New("refresh token reuse detected")

	// ErrRecordUnreadable means a stored token failed authenticated
	// decryption: either the row is corrupted or the key changed.
	// Not a user-facing authentication error.
	ErrRecordUnreadable = errors.New("token record unreadable")

	ErrAccessTokenRevoked = errors.New("access token revoked")
)
