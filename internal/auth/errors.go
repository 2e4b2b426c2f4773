package auth

import "errors"

var (
	// ErrTokenInvalid is returned for malformed, forged or incomplete tokens.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("auth: token has expired")

	// ErrNoSecret is returned when no signing secret is configured.
	ErrNoSecret = errors.New("auth: signing secret not configured")
)
