package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"

	"github.com/sakif/ecochallenge/internal/auth"
	"github.com/sakif/ecochallenge/internal/handler"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/service"
)

var (
	_ handler.ProfileService    = (*MockProfileService)(nil)
	_ handler.EntryService      = (*MockEntryService)(nil)
	_ handler.VoteService       = (*MockVoteService)(nil)
	_ handler.AuthService       = (*MockAuthService)(nil)
	_ handler.LeaderboardReader = (*MockLeaderboard)(nil)
	_ handler.GitHubOAuth       = (*MockGitHub)(nil)
)

type MockProfileService struct{ mock.Mock }

func (m *MockProfileService) Get(ctx context.Context, userID string) (*model.Profile, bool, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).(*model.Profile)
	return p, args.Bool(1), args.Error(2)
}

func (m *MockProfileService) Update(ctx context.Context, userID, email string, patch service.ProfilePatch) (*model.Profile, error) {
	args := m.Called(ctx, userID, email, patch)
	p, _ := args.Get(0).(*model.Profile)
	return p, args.Error(1)
}

func (m *MockProfileService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

type MockEntryService struct {
	mock.Mock

	// SubmittedBody is what the handler passed as the file.
	SubmittedBody []byte
}

func (m *MockEntryService) Get(ctx context.Context, userID string) (*model.Entry, bool, error) {
	args := m.Called(ctx, userID)
	e, _ := args.Get(0).(*model.Entry)
	return e, args.Bool(1), args.Error(2)
}

func (m *MockEntryService) Submit(ctx context.Context, userID string, file io.Reader, description *string) (*model.Entry, error) {
	m.SubmittedBody, _ = io.ReadAll(file)
	args := m.Called(ctx, userID, description)
	e, _ := args.Get(0).(*model.Entry)
	return e, args.Error(1)
}

func (m *MockEntryService) List(ctx context.Context, page, pageSize int) []model.Entry {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).([]model.Entry)
}

func (m *MockEntryService) Delete(ctx context.Context, userID, entryID string) error {
	return m.Called(ctx, userID, entryID).Error(0)
}

type MockVoteService struct{ mock.Mock }

func (m *MockVoteService) HasVoted(ctx context.Context, userID, entryID string) (bool, error) {
	args := m.Called(ctx, userID, entryID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVoteService) Vote(ctx context.Context, userID, entryID string) (int, error) {
	args := m.Called(ctx, userID, entryID)
	return args.Int(0), args.Error(1)
}

func (m *MockVoteService) VotedAmong(ctx context.Context, userID string, entryIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, userID, entryIDs)
	voted, _ := args.Get(0).(map[string]bool)
	return voted, args.Error(1)
}

type MockAuthService struct{ mock.Mock }

func (m *MockAuthService) LoginGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.AuthResult, error) {
	args := m.Called(ctx, ghUser)
	r, _ := args.Get(0).(*service.AuthResult)
	return r, args.Error(1)
}

func (m *MockAuthService) Me(ctx context.Context, p auth.Principal) (*model.Profile, error) {
	args := m.Called(ctx, p)
	pr, _ := args.Get(0).(*model.Profile)
	return pr, args.Error(1)
}

type MockLeaderboard struct{ mock.Mock }

func (m *MockLeaderboard) Top(ctx context.Context, limit int) []model.LeaderboardRow {
	return m.Called(ctx, limit).Get(0).([]model.LeaderboardRow)
}

type MockGitHub struct{ mock.Mock }

func (m *MockGitHub) AuthURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockGitHub) Exchange(ctx context.Context, code string) (*auth.GitHubUser, error) {
	args := m.Called(ctx, code)
	u, _ := args.Get(0).(*auth.GitHubUser)
	return u, args.Error(1)
}

// =========================================================================
// HELPERS
// =========================================================================

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var alice = auth.Principal{Subject: "auth|alice", Email: "alice@example.com"}

// asUser attaches p to the request the way RequireAuth would.
func asUser(r *http.Request, p auth.Principal) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

// withParams sets chi URL parameters on a request that bypasses the router.
func withParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
