// Package auth verifies who is calling the API.
//
// IDENTITY COMES FROM OUTSIDE:
// Users sign in with an external identity provider. This package never sees
// a password. What it handles is the token that proves a sign-in happened:
//
//  1. GitHub login: /auth/github/login redirects to GitHub, the callback
//     exchanges the code for the GitHub user, and the server issues a session
//     JWT for the subject "github|<id>" in an HttpOnly cookie.
//  2. Any provider that can mint an HS256 JWT with the shared secret and
//     issuer: the client sends it as "Authorization: Bearer <jwt>".
//
// Either way the middleware ends up with a Principal (subject + email) in the
// request context. The subject is the provider's raw user id. It is encoded
// into a storage key by the service layer, never here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is how long an issued session token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid token")

// Principal is the authenticated caller.
type Principal struct {
	// Subject is the identity provider's user id, e.g. "github|1234".
	Subject string
	Email   string
}

// TokenService signs and verifies HS256 tokens for one issuer.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenService returns a TokenService. The secret must be at least 16
// characters; an empty issuer defaults to "ecochallenge".
func NewTokenService(secret, issuer string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if issuer == "" {
		issuer = "ecochallenge"
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: DefaultSessionTTL}, nil
}

// claims carries "sub" in the registered claims and the caller's email.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Generate issues a session token for p with the default lifetime.
func (s *TokenService) Generate(p Principal) (string, error) {
	return s.GenerateWithDuration(p, s.ttl)
}

// GenerateWithDuration issues a token that expires after d. Tests use a
// negative d to get an already-expired token.
func (s *TokenService) GenerateWithDuration(p Principal, d time.Duration) (string, error) {
	if p.Subject == "" {
		return "", errors.New("auth: token subject must not be empty")
	}
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		},
		Email: p.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// TTL is the lifetime of tokens from Generate.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Validate verifies signature, algorithm, issuer and expiry, and returns the
// caller. Only HS256 is accepted, which rules out "alg: none" tokens.
func (s *TokenService) Validate(tokenStr string) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, fmt.Errorf("%w: token expired", ErrInvalidToken)
		}
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	if c.Subject == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return Principal{Subject: c.Subject, Email: c.Email}, nil
}
