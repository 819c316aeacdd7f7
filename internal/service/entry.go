package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/media"
	"github.com/sakif/ecochallenge/internal/metrics"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/repository"
	"github.com/sakif/ecochallenge/internal/storage"
)

// Feed paging limits.
const (
	DefaultPageSize          = 10
	DefaultEcosystemPageSize = 6
	MaxPageSize              = 50

	MaxDescriptionLength = 1000
)

type EntryService struct {
	entries  repository.EntryRepository
	objects  storage.ObjectStore
	maxBytes int64
	retry    retrier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewEntryService wires the entry lifecycle. maxBytes <= 0 means media.DefaultMaxBytes.
func NewEntryService(entries repository.EntryRepository, objects storage.ObjectStore, maxBytes int64, logger *slog.Logger, m *metrics.Metrics) *EntryService {
	if maxBytes <= 0 {
		maxBytes = media.DefaultMaxBytes
	}
	return &EntryService{
		entries:  entries,
		objects:  objects,
		maxBytes: maxBytes,
		retry:    newRetrier(logger, m),
		logger:   logger,
		metrics:  m,
	}
}

// HasEntry reports whether userID has submitted an entry.
func (s *EntryService) HasEntry(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	key := identity.Encode(userID)
	return retryRead(ctx, s.retry, "has entry", func(ctx context.Context) (bool, error) {
		return s.entries.HasEntry(ctx, key)
	})
}

// Get returns the entry of userID. No entry is found == false.
func (s *EntryService) Get(ctx context.Context, userID string) (*model.Entry, bool, error) {
	if userID == "" {
		return nil, false, nil
	}
	key := identity.Encode(userID)

	entry, err := retryRead(ctx, s.retry, "get entry", func(ctx context.Context) (*model.Entry, error) {
		e, _, err := s.entries.GetEntryByUser(ctx, key)
		return e, err
	})
	if err != nil {
		return nil, false, err
	}
	return entry, entry != nil, nil
}

// Create stores a new entry for userID pointing at imageURL.
//
// HasEntry is checked first for a clear error, but the UNIQUE(user_id)
// constraint is what guarantees one entry per user under concurrency.
//
// WRITES ARE NOT RETRIED BLINDLY:
// A storage error does not tell us whether the INSERT landed. Before trying
// again the service asks the store: if the user now has an entry, that entry
// is the result; otherwise the insert is attempted once more.
func (s *EntryService) Create(ctx context.Context, userID, imageURL string, description *string) (*model.Entry, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, apperror.ValidationFailed("imageUrl", "image url is required")
	}
	description, err := normalizeDescription(description)
	if err != nil {
		return nil, err
	}

	has, err := s.HasEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, apperror.AlreadyExists("entry")
	}

	key := identity.Encode(userID)
	entry, err := s.entries.CreateEntry(ctx, key, imageURL, description)
	if errors.Is(err, apperror.ErrStorage) {
		s.logger.Warn("entry insert failed, verifying",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		existing, found, getErr := s.Get(ctx, userID)
		switch {
		case getErr != nil:
			// Still cannot read the store; report the original failure.
		case found && existing.ImageURL == imageURL:
			entry, err = existing, nil
		case found:
			err = apperror.AlreadyExists("entry")
		default:
			entry, err = s.entries.CreateEntry(ctx, key, imageURL, description)
		}
	}
	if err != nil {
		if errors.Is(err, apperror.ErrStorage) {
			s.logger.Error("failed to create entry",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.metrics.EntryCreated()
	s.logger.Info("entry created",
		slog.String("id", entry.ID),
		slog.String("userID", userID),
	)
	return entry, nil
}

// Submit is the upload flow behind POST /api/entries:
//
//  1. reject users who already have an entry, before any upload
//  2. validate the image (JPEG/PNG/GIF, size cap)
//  3. put it in the object store under entries/<uuid><ext>
//  4. create the entry with the object's public URL
//
// If step 4 fails the uploaded object is deleted so it does not linger
// unreferenced.
func (s *EntryService) Submit(ctx context.Context, userID string, file io.Reader, description *string) (*model.Entry, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}
	if file == nil {
		return nil, apperror.ValidationFailed("file", "file is required")
	}

	has, err := s.HasEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, apperror.AlreadyExists("entry")
	}

	img, err := media.Read(file, s.maxBytes)
	if err != nil {
		return nil, s.mediaError(err)
	}

	objectKey := "entries/" + uuid.NewString() + img.Extension
	url, err := s.objects.Put(ctx, objectKey, img.ContentType, img.Reader())
	if err != nil {
		s.logger.Error("failed to store entry image",
			slog.String("userID", userID),
			slog.String("key", objectKey),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Storage("uploading image", err)
	}

	entry, err := s.Create(ctx, userID, url, description)
	if err != nil {
		// The request may already be cancelled; cleanup must run anyway.
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), objectKey); delErr != nil {
			s.logger.Warn("failed to remove orphaned image",
				slog.String("key", objectKey),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}
	return entry, nil
}

// List returns one page of entries, newest first. page < 1 is treated as 1
// and pageSize is clamped to [1, MaxPageSize]; pageSize 0 means
// DefaultPageSize.
//
// A failing read is logged and served as an empty page: the feed is never
// the reason a page fails to render.
func (s *EntryService) List(ctx context.Context, page, pageSize int) []model.Entry {
	limit, offset := pageBounds(page, pageSize)

	entries, err := retryRead(ctx, s.retry, "list entries", func(ctx context.Context) ([]model.Entry, error) {
		return s.entries.ListEntries(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	})
	if err != nil {
		s.logger.Error("failed to list entries",
			slog.Int("page", page),
			slog.Int("pageSize", limit),
			slog.String("error", err.Error()),
		)
		return []model.Entry{}
	}
	if entries == nil {
		return []model.Entry{}
	}
	return entries
}

// Delete removes the entry when userID owns it. Anyone else's call is a
// silent no-op.
func (s *EntryService) Delete(ctx context.Context, userID, entryID string) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "user id is required")
	}
	if entryID == "" {
		return apperror.ValidationFailed("id", "entry id is required")
	}

	deleted, err := s.entries.DeleteEntry(ctx, identity.Encode(userID), entryID)
	if err != nil {
		s.logger.Error("failed to delete entry",
			slog.String("id", entryID),
			slog.String("error", err.Error()),
		)
		return err
	}
	if deleted {
		s.logger.Info("entry deleted", slog.String("id", entryID), slog.String("userID", userID))
	}
	return nil
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize == 0:
		pageSize = DefaultPageSize
	case pageSize < 1:
		pageSize = 1
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

// normalizeDescription trims; an empty result is stored as NULL.
func normalizeDescription(description *string) (*string, error) {
	if description == nil {
		return nil, nil
	}
	d := strings.TrimSpace(*description)
	if d == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(d) > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description", "description is too long")
	}
	return &d, nil
}

func (s *EntryService) mediaError(err error) error {
	switch {
	case errors.Is(err, media.ErrEmpty):
		return apperror.ValidationFailed("file", "file is required")
	case errors.Is(err, media.ErrTooLarge):
		return apperror.ValidationFailed("file", fmt.Sprintf("file is too large (maximum %d bytes)", s.maxBytes))
	case errors.Is(err, media.ErrUnsupportedType):
		return apperror.ValidationFailed("file", "file must be a JPEG, PNG or GIF image")
	}
	return apperror.Storage("reading upload", err)
}
