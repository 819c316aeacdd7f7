package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/model"
)

func newTestEntryService(store *fakeStore, objects *fakeObjects) *EntryService {
	svc := NewEntryService(store, objects, 1024, discardLogger(), nil)
	fastRetry(&svc.retry)
	return svc
}

func TestEntryService_Submit(t *testing.T) {
	store := newFakeStore()
	seedProfile(store, "auth|alice", "alice")
	objects := newFakeObjects()
	svc := newTestEntryService(store, objects)

	entry, err := svc.Submit(context.Background(), "auth|alice", bytes.NewReader(pngBytes), model.Ptr("  my garden  "))
	require.NoError(t, err)

	assert.Equal(t, "auth|alice", entry.UserID)
	assert.Equal(t, 0, entry.VotesCount)
	require.NotNil(t, entry.Description)
	assert.Equal(t, "my garden", *entry.Description)

	assert.True(t, strings.HasPrefix(entry.ImageURL, "http://localhost:8080/uploads/entries/"), entry.ImageURL)
	assert.True(t, strings.HasSuffix(entry.ImageURL, ".png"), entry.ImageURL)
	assert.Equal(t, 1, objects.count())
}

func TestEntryService_Submit_AlreadyHasEntry(t *testing.T) {
	store := newFakeStore()
	seedProfile(store, "auth|alice", "alice")
	objects := newFakeObjects()
	svc := newTestEntryService(store, objects)
	ctx := context.Background()

	_, err := svc.Submit(ctx, "auth|alice", bytes.NewReader(pngBytes), nil)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "auth|alice", bytes.NewReader(pngBytes), nil)
	assert.ErrorIs(t, err, apperror.ErrAlreadyExists)
	assert.Equal(t, 1, objects.count(), "second upload never reaches the store")
}

func TestEntryService_Submit_MediaErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		message string
	}{
		{name: "empty", data: nil, message: "file is required"},
		{name: "not an image", data: []byte("hello, world"), message: "file must be a JPEG, PNG or GIF image"},
		{name: "too large", data: append(append([]byte{}, pngBytes...), make([]byte, 2048)...), message: "file is too large (maximum 1024 bytes)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seedProfile(store, "auth|alice", "alice")
			objects := newFakeObjects()
			svc := newTestEntryService(store, objects)

			_, err := svc.Submit(context.Background(), "auth|alice", bytes.NewReader(tt.data), nil)

			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "file", appErr.Field)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Equal(t, 0, objects.count())
		})
	}
}

func TestEntryService_Submit_RemovesImageWhenCreateFails(t *testing.T) {
	// No profile: the insert fails on the foreign key after the upload.
	store := newFakeStore()
	objects := newFakeObjects()
	svc := newTestEntryService(store, objects)

	_, err := svc.Submit(context.Background(), "auth|nobody", bytes.NewReader(pngBytes), nil)

	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, 0, objects.count())
	require.Len(t, objects.deleted, 1)
	assert.True(t, strings.HasPrefix(objects.deleted[0], "entries/"))
}

func TestEntryService_Submit_UploadFailure(t *testing.T) {
	store := newFakeStore()
	seedProfile(store, "auth|alice", "alice")
	objects := newFakeObjects()
	objects.putErr = errors.New("disk full")
	svc := newTestEntryService(store, objects)

	_, err := svc.Submit(context.Background(), "auth|alice", bytes.NewReader(pngBytes), nil)

	assert.ErrorIs(t, err, apperror.ErrStorage)
	assert.Equal(t, 0, store.callCount("CreateEntry"))
}

func TestEntryService_Create_Validation(t *testing.T) {
	svc := newTestEntryService(newFakeStore(), newFakeObjects())
	ctx := context.Background()

	_, err := svc.Create(ctx, "", "http://x/y.png", nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Create(ctx, "auth|alice", "   ", nil)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Create(ctx, "auth|alice", "http://x/y.png", model.Ptr(strings.Repeat("x", MaxDescriptionLength+1)))
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestEntryService_Create_BlankDescriptionIsNull(t *testing.T) {
	store := newFakeStore()
	seedProfile(store, "auth|alice", "alice")
	svc := newTestEntryService(store, newFakeObjects())

	entry, err := svc.Create(context.Background(), "auth|alice", "http://x/y.png", model.Ptr("   "))
	require.NoError(t, err)
	assert.Nil(t, entry.Description)
}

func TestEntryService_Create_VerifiesBeforeRetry(t *testing.T) {
	t.Run("insert landed", func(t *testing.T) {
		store := newFakeStore()
		seedProfile(store, "auth|alice", "alice")
		store.landThenFail["CreateEntry"] = true
		svc := newTestEntryService(store, newFakeObjects())

		entry, err := svc.Create(context.Background(), "auth|alice", "http://x/y.png", nil)
		require.NoError(t, err)
		assert.Equal(t, "http://x/y.png", entry.ImageURL)
		assert.Equal(t, 1, store.callCount("CreateEntry"), "no second insert")
		assert.Len(t, store.entries, 1)
	})

	t.Run("insert lost", func(t *testing.T) {
		store := newFakeStore()
		seedProfile(store, "auth|alice", "alice")
		store.failNext("CreateEntry", 1)
		svc := newTestEntryService(store, newFakeObjects())

		entry, err := svc.Create(context.Background(), "auth|alice", "http://x/y.png", nil)
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, 2, store.callCount("CreateEntry"))
	})

	t.Run("retry fails too", func(t *testing.T) {
		store := newFakeStore()
		seedProfile(store, "auth|alice", "alice")
		store.failNext("CreateEntry", 2)
		svc := newTestEntryService(store, newFakeObjects())

		_, err := svc.Create(context.Background(), "auth|alice", "http://x/y.png", nil)
		assert.ErrorIs(t, err, apperror.ErrStorage)
		assert.Empty(t, store.entries)
	})
}

func TestEntryService_List(t *testing.T) {
	store := newFakeStore()
	svc := newTestEntryService(store, newFakeObjects())
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 12 {
		key := seedProfile(store, "auth|u"+string(rune('a'+i)), "u"+string(rune('a'+i)))
		id := "e" + string(rune('a'+i))
		store.entries[id] = &model.Entry{ID: id, UserID: key.Decode(), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		store.owners[id] = key
	}

	first := svc.List(ctx, 1, 0)
	require.Len(t, first, DefaultPageSize)
	assert.Equal(t, "el", first[0].ID, "newest first")

	second := svc.List(ctx, 2, 0)
	require.Len(t, second, 2)
	assert.Equal(t, "ea", second[1].ID)

	assert.Len(t, svc.List(ctx, 0, 5), 5, "page 0 is page 1")
	assert.Len(t, svc.List(ctx, 1, 500), 12, "page size is clamped, not rejected")
	assert.Empty(t, svc.List(ctx, 99, 10))
}

func TestEntryService_List_DegradesToEmpty(t *testing.T) {
	store := newFakeStore()
	svc := newTestEntryService(store, newFakeObjects())

	store.failNext("ListEntries", readMaxAttempts)
	got := svc.List(context.Background(), 1, 10)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, readMaxAttempts, store.callCount("ListEntries"))
}

func TestEntryService_Delete(t *testing.T) {
	store := newFakeStore()
	seedProfile(store, "auth|alice", "alice")
	svc := newTestEntryService(store, newFakeObjects())
	ctx := context.Background()

	entry, err := svc.Create(ctx, "auth|alice", "http://x/y.png", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "auth|mallory", entry.ID))
	assert.Len(t, store.entries, 1, "non-owner delete is a no-op")

	require.NoError(t, svc.Delete(ctx, "auth|alice", entry.ID))
	assert.Empty(t, store.entries)

	assert.ErrorIs(t, svc.Delete(ctx, "auth|alice", ""), apperror.ErrValidation)
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		page, size            int
		wantLimit, wantOffset int
	}{
		{page: 1, size: 10, wantLimit: 10, wantOffset: 0},
		{page: 3, size: 6, wantLimit: 6, wantOffset: 12},
		{page: 0, size: 0, wantLimit: DefaultPageSize, wantOffset: 0},
		{page: -4, size: -1, wantLimit: 1, wantOffset: 0},
		{page: 2, size: 1000, wantLimit: MaxPageSize, wantOffset: MaxPageSize},
	}
	for _, tt := range tests {
		limit, offset := pageBounds(tt.page, tt.size)
		assert.Equal(t, tt.wantLimit, limit, "pageBounds(%d, %d) limit", tt.page, tt.size)
		assert.Equal(t, tt.wantOffset, offset, "pageBounds(%d, %d) offset", tt.page, tt.size)
	}
}
