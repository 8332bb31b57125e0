package auth

import (
	"time"

	"github.com/nerrad567/gray-logic-rrd/internal/infrastructure/config"
)

// Authenticator checks credentials against the configured users and issues
// tokens.
type Authenticator struct {
	users  map[string]string // username -> PHC hash
	secret string
	ttl    time.Duration

	// dummyHash is verified for unknown users so both paths cost one Argon2id run.
	dummyHash string
}

// NewAuthenticator builds an Authenticator from the security section.
func NewAuthenticator(cfg config.SecurityConfig) (*Authenticator, error) {
	if cfg.JWT.Secret == "" {
		return nil, ErrMissingSecret
	}
	users := make(map[string]string, len(cfg.Users))
	for _, u := range cfg.Users {
		if _, _, _, err := decodePHC(u.PasswordHash); err != nil {
			return nil, err
		}
		users[u.Username] = u.PasswordHash
	}
	dummy, err := HashPassword("rrdcore")
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		users:     users,
		secret:    cfg.JWT.Secret,
		ttl:       time.Duration(cfg.JWT.AccessTokenTTL) * time.Minute,
		dummyHash: dummy,
	}, nil
}

// Login verifies username and password and returns a fresh token.
//
// Returns:
//   - Token: signed access token
//   - error: ErrInvalidCredentials for an unknown user or wrong password
func (a *Authenticator) Login(username, password string) (Token, error) {
	hash, known := a.users[username]
	if !known {
		hash = a.dummyHash
	}
	ok, err := VerifyPassword(password, hash)
	if err != nil || !ok || !known {
		return Token{}, ErrInvalidCredentials
	}
	return IssueToken(username, a.secret, a.ttl)
}

// Verify parses a token issued by this authenticator.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	return ParseToken(token, a.secret)
}
