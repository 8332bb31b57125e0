package auth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned for a token that fails signature, expiry or claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidHash is returned for a stored hash that is not an Argon2id PHC string.
	ErrInvalidHash = errors.New("auth: invalid password hash")

	// ErrMissingSecret is returned when signing or verifying without a secret.
	ErrMissingSecret = errors.New("auth: jwt secret is required")
)
