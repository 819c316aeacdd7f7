// Package handler is the HTTP layer: it parses requests, calls a service and
// writes JSON.
//
// Handlers depend on the small interfaces below rather than on the concrete
// services, so tests can swap in mocks. The *service.XService types satisfy
// them; see the compile-time checks in server.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/sakif/ecochallenge/internal/auth"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/service"
)

type ProfileService interface {
	Get(ctx context.Context, userID string) (*model.Profile, bool, error)
	Update(ctx context.Context, userID, email string, patch service.ProfilePatch) (*model.Profile, error)
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
}

type EntryService interface {
	Get(ctx context.Context, userID string) (*model.Entry, bool, error)
	Submit(ctx context.Context, userID string, file io.Reader, description *string) (*model.Entry, error)
	List(ctx context.Context, page, pageSize int) []model.Entry
	Delete(ctx context.Context, userID, entryID string) error
}

type VoteService interface {
	HasVoted(ctx context.Context, userID, entryID string) (bool, error)
	Vote(ctx context.Context, userID, entryID string) (int, error)
	VotedAmong(ctx context.Context, userID string, entryIDs []string) (map[string]bool, error)
}

type AuthService interface {
	LoginGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error)
	Me(ctx context.Context, p auth.Principal) (*model.Profile, error)
}

// LeaderboardReader never fails; an unreachable points DB yields an empty board.
type LeaderboardReader interface {
	Top(ctx context.Context, limit int) []model.LeaderboardRow
}

// GitHubOAuth is the part of *auth.GitHubProvider the login flow uses.
type GitHubOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// Pinger reports whether the primary store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// principal returns the authenticated caller. Routes behind RequireAuth
// always have one; the 401 branch only fires if a route is wired without it.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
	}
	return p, ok
}
