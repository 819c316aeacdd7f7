package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/ecochallenge/internal/auth"
	"github.com/sakif/ecochallenge/internal/model"
)

// TokenIssuer issues session tokens. *auth.TokenService satisfies it.
type TokenIssuer interface {
	Generate(p auth.Principal) (string, error)
}

// AuthService turns a completed identity-provider login into a profile and
// a session token.
//
//	AuthHandler (HTTP) → AuthService → ProfileService.Ensure (first-login profile)
//	                                 ↘ TokenIssuer (session JWT)
type AuthService struct {
	profiles *ProfileService
	tokens   TokenIssuer
	logger   *slog.Logger
}

func NewAuthService(profiles *ProfileService, tokens TokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{profiles: profiles, tokens: tokens, logger: logger}
}

// AuthResult bundles the caller's profile with the session token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	Profile *model.Profile
	Token   string
}

// LoginGitHub handles the OAuth callback after the code exchange: it makes
// sure the GitHub account has a profile and issues a session for it.
func (s *AuthService) LoginGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	return s.Login(ctx, ghUser.Principal())
}

// Login ensures p has a profile and issues a session token for p.
func (s *AuthService) Login(ctx context.Context, p auth.Principal) (*AuthResult, error) {
	profile, err := s.profiles.Ensure(ctx, p.Subject, p.Email)
	if err != nil {
		return nil, fmt.Errorf("service/auth: ensuring profile for %s: %w", p.Subject, err)
	}

	token, err := s.tokens.Generate(p)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", p.Subject, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userID", p.Subject),
		slog.String("username", profile.Username),
	)
	return &AuthResult{Profile: profile, Token: token}, nil
}

// Me returns the caller's profile, creating it on the first authenticated
// request. This is how bearer-token users, who never pass through a login
// callback here, get their profile.
func (s *AuthService) Me(ctx context.Context, p auth.Principal) (*model.Profile, error) {
	return s.profiles.Ensure(ctx, p.Subject, p.Email)
}
