// Package service contains the business rules of the community backend.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)      → parses requests, writes responses
//	Service (rules)     → validates, encodes ids, orchestrates, retries reads
//	Repository (data)   → SQL and constraints
//
// Services take raw identity-provider ids from their callers and encode them
// with identity.Encode before touching a repository. Nothing above this layer
// deals in storage keys.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/metrics"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/repository"
)

const (
	MaxUsernameLength = 30

	// defaultUsernameAttempts bounds the search for a free default username
	// on first login.
	defaultUsernameAttempts = 8
)

// ProfilePatch is a profile edit. Fields that are not Set keep their value.
type ProfilePatch struct {
	Username          model.Optional[string]
	ProfilePictureURL model.Optional[*string]
	Country           model.Optional[*string]
}

type ProfileService struct {
	repo   repository.ProfileRepository
	retry  retrier
	logger *slog.Logger

	// suffix picks the numeric part of a default username. Tests replace it.
	suffix func() int
}

func NewProfileService(repo repository.ProfileRepository, logger *slog.Logger, m *metrics.Metrics) *ProfileService {
	return &ProfileService{
		repo:   repo,
		retry:  newRetrier(logger, m),
		logger: logger,
		suffix: func() int { return rand.IntN(1000) },
	}
}

// Upsert creates or updates the profile of userID.
//
// Username is always written and must be available: held by no profile, or
// by this one. Picture and country are written only when Set, so a caller
// changing just the country cannot clobber the picture.
func (s *ProfileService) Upsert(ctx context.Context, userID, email, username string, picture, country model.Optional[*string]) (*model.Profile, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}
	key := identity.Encode(userID)

	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}
	if err := validatePicture(picture); err != nil {
		return nil, err
	}
	country, err = normalizeCountry(country)
	if err != nil {
		return nil, err
	}

	// A miss comes back as the empty key.
	owner, err := retryRead(ctx, s.retry, "username owner", func(ctx context.Context) (identity.Key, error) {
		owner, found, err := s.repo.UsernameOwner(ctx, username)
		if !found {
			owner = ""
		}
		return owner, err
	})
	if err != nil {
		return nil, err
	}
	if owner != "" && owner != key {
		return nil, apperror.Conflict("profile", "username "+username+" is taken")
	}

	profile, err := s.repo.UpsertProfile(ctx, repository.ProfileUpsert{
		Key:               key,
		Email:             strings.TrimSpace(email),
		Username:          username,
		ProfilePictureURL: picture,
		Country:           country,
	})
	if err != nil {
		s.logUnexpected("upserting profile", userID, err)
		return nil, err
	}

	s.logger.Info("profile saved",
		slog.String("userID", userID),
		slog.String("username", profile.Username),
	)
	return profile, nil
}

// Update applies patch to an existing profile. An empty email keeps the
// stored one.
func (s *ProfileService) Update(ctx context.Context, userID, email string, patch ProfilePatch) (*model.Profile, error) {
	existing, found, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperror.NotFound("profile", userID)
	}

	username := existing.Username
	if patch.Username.Set {
		username = patch.Username.Value
	}
	if strings.TrimSpace(email) == "" {
		email = existing.Email
	}

	return s.Upsert(ctx, userID, email, username, patch.ProfilePictureURL, patch.Country)
}

// Get returns the profile of userID. A missing profile is found == false.
func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, bool, error) {
	if userID == "" {
		return nil, false, nil
	}
	key := identity.Encode(userID)

	type result struct {
		profile *model.Profile
		found   bool
	}
	r, err := retryRead(ctx, s.retry, "get profile", func(ctx context.Context) (result, error) {
		p, found, err := s.repo.GetProfile(ctx, key)
		return result{p, found}, err
	})
	if err != nil {
		return nil, false, err
	}
	return r.profile, r.found, nil
}

// IsUsernameAvailable reports whether no profile holds username. Comparison
// is exact: "Alice" and "alice" are different names.
func (s *ProfileService) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}
	return retryRead(ctx, s.retry, "username available", func(ctx context.Context) (bool, error) {
		_, found, err := s.repo.UsernameOwner(ctx, username)
		return !found, err
	})
}

// Ensure returns the profile of userID, creating it on first login.
//
// A new profile gets a default username: the alphanumeric part of the email's
// local part (or "user") followed by a number below 1000. A taken candidate
// is replaced by a fresh one, up to defaultUsernameAttempts times.
func (s *ProfileService) Ensure(ctx context.Context, userID, email string) (*model.Profile, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}

	existing, found, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if found {
		return existing, nil
	}

	key := identity.Encode(userID)
	base := usernameBase(email)

	for attempt := 0; attempt < defaultUsernameAttempts; attempt++ {
		candidate := base + strconv.Itoa(s.suffix())

		profile, err := s.repo.InsertProfile(ctx, repository.ProfileUpsert{
			Key:      key,
			Email:    strings.TrimSpace(email),
			Username: candidate,
		})
		if errors.Is(err, apperror.ErrConflict) {
			continue
		}
		if err != nil {
			s.logUnexpected("creating profile", userID, err)
			return nil, err
		}

		s.logger.Info("profile created",
			slog.String("userID", userID),
			slog.String("username", profile.Username),
		)
		return profile, nil
	}

	return nil, apperror.Conflict("profile", "could not find a free default username")
}

// usernameBase strips the email local part to ASCII letters and digits.
func usernameBase(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range local {
		if r < utf8.RuneSelf && (('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		return "user"
	}
	// Leave room for the three-digit suffix.
	if len(base) > MaxUsernameLength-3 {
		base = base[:MaxUsernameLength-3]
	}
	return base
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperror.ValidationFailed("username", "username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return "", apperror.ValidationFailed("username", "username must be at most "+strconv.Itoa(MaxUsernameLength)+" characters")
	}
	return username, nil
}

func validatePicture(picture model.Optional[*string]) error {
	if !picture.Set || picture.Value == nil {
		return nil
	}
	if !model.IsProfilePicture(*picture.Value) {
		return apperror.ValidationFailed("profilePictureUrl", "profile picture must be one of the presets")
	}
	return nil
}

// normalizeCountry lowercases a set country code and checks it against the list.
func normalizeCountry(country model.Optional[*string]) (model.Optional[*string], error) {
	if !country.Set || country.Value == nil {
		return country, nil
	}
	code := strings.ToLower(strings.TrimSpace(*country.Value))
	if code == "" {
		return model.Some[*string](nil), nil
	}
	if !model.IsCountry(code) {
		return country, apperror.ValidationFailed("country", "unknown country code "+code)
	}
	return model.Some(&code), nil
}

// logUnexpected logs storage failures. Business errors are not logged here;
// the handler reports them to the client.
func (s *ProfileService) logUnexpected(op, userID string, err error) {
	if errors.Is(err, apperror.ErrStorage) {
		s.logger.Error(op+" failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}
}
