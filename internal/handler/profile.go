package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/service"
)

// ProfileHandler serves the caller's own profile and public profile lookups.
//
//   - HandleMe           → GET /api/me (first request creates the profile)
//   - HandleGetOwn       → GET /api/profile
//   - HandleUpdate       → PUT /api/profile
//   - HandleGetPublic    → GET /api/profiles/{id}
//   - HandleUsernameFree → GET /api/usernames/{username}
type ProfileHandler struct {
	profiles ProfileService
	auth     AuthService
	logger   *slog.Logger
}

func NewProfileHandler(profiles ProfileService, auth AuthService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, auth: auth, logger: logger}
}

// updateProfileRequest distinguishes omitted fields from explicit nulls:
//
//	{"country": "us"}   sets the country
//	{"country": null}   clears it
//	{}                  leaves it alone
type updateProfileRequest struct {
	Username          model.Optional[string]  `json:"username"`
	ProfilePictureURL model.Optional[*string] `json:"profilePictureUrl"`
	Country           model.Optional[*string] `json:"country"`
}

// HandleMe returns the caller's profile, creating it with a default username
// on the first authenticated request.
//
// HTTP: GET /api/me
// Auth: required
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	profile, err := h.auth.Me(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleGetOwn returns the caller's profile, or 404 before one exists.
//
// HTTP: GET /api/profile
// Auth: required
func (h *ProfileHandler) HandleGetOwn(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	profile, found, err := h.profiles.Get(r.Context(), p.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, apperror.NotFound("profile", p.Subject))
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdate applies a partial update to the caller's profile.
//
// HTTP: PUT /api/profile
// Auth: required
// REQUEST BODY: {"username": "alice", "profilePictureUrl": "/avatars/Moss.svg", "country": "se"}
//
// 400 for invalid fields, 404 when the caller has no profile yet, 409 when
// the username belongs to someone else.
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.profiles.Update(r.Context(), p.Subject, p.Email, service.ProfilePatch{
		Username:          req.Username,
		ProfilePictureURL: req.ProfilePictureURL,
		Country:           req.Country,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleGetPublic looks a profile up by identity-provider id.
//
// HTTP: GET /api/profiles/{id}
//
// Provider ids contain characters like "|" and ":", so clients send them
// percent-encoded. chi matches on the raw path, hence the unescape.
func (h *ProfileHandler) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeError(w, apperror.ValidationFailed("id", "a valid profile id is required"))
		return
	}

	profile, found, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, apperror.NotFound("profile", id))
		return
	}

	// Email stays private.
	public := *profile
	public.Email = ""
	writeJSON(w, http.StatusOK, public)
}

// HandleUsernameFree reports whether a username can still be claimed.
//
// HTTP: GET /api/usernames/{username}
// RESPONSE: {"available": true}
func (h *ProfileHandler) HandleUsernameFree(w http.ResponseWriter, r *http.Request) {
	username, err := url.PathUnescape(chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, apperror.ValidationFailed("username", "invalid username"))
		return
	}

	available, err := h.profiles.IsUsernameAvailable(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}
