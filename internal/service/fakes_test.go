package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/repository"
	"github.com/sakif/ecochallenge/internal/storage"
)

// =========================================================================
// FAKE STORE
// =========================================================================
//
// fakeStore is an in-memory repository.Store with the same uniqueness rules
// as the SQLite schema. Tests inject failures per method name:
//
//	store.failNext("ListEntries", 2)        // next two calls fail with ErrStorage
//	store.landThenFail["CastVote"] = true   // writes, then reports ErrStorage
//	store.failAfter("HasVoted", "CastVote", 3) // fails three calls once CastVote has run

var _ repository.Store = (*fakeStore)(nil)

type fakeStore struct {
	mu sync.Mutex

	profiles map[identity.Key]*model.Profile
	entries  map[string]*model.Entry // by entry id
	owners   map[string]identity.Key // entry id -> owner key
	votes    map[string]bool         // owner key + "|" + entry id

	fail         map[string]int
	armed        map[string]armedFailure
	landThenFail map[string]bool
	calls        map[string]int
}

// armedFailure turns into n injected failures once trigger has been called.
type armedFailure struct {
	trigger string
	n       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:     map[identity.Key]*model.Profile{},
		entries:      map[string]*model.Entry{},
		owners:       map[string]identity.Key{},
		votes:        map[string]bool{},
		fail:         map[string]int{},
		armed:        map[string]armedFailure{},
		landThenFail: map[string]bool{},
		calls:        map[string]int{},
	}
}

var errLocked = errors.New("database is locked")

func (f *fakeStore) failNext(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = n
}

func (f *fakeStore) failAfter(op, trigger string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[op] = armedFailure{trigger: trigger, n: n}
}

func (f *fakeStore) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records a call and returns the injected failure, if any. Callers
// hold f.mu.
func (f *fakeStore) enter(op string) error {
	f.calls[op]++
	if a, ok := f.armed[op]; ok && f.calls[a.trigger] > 0 {
		f.fail[op] += a.n
		delete(f.armed, op)
	}
	if f.fail[op] > 0 {
		f.fail[op]--
		return apperror.Storage(op, errLocked)
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) UpsertProfile(_ context.Context, p repository.ProfileUpsert) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpsertProfile"); err != nil {
		return nil, err
	}
	if f.usernameHeldByOther(p.Username, p.Key) {
		return nil, apperror.Conflict("profile", "username "+p.Username+" is taken")
	}

	now := time.Now().UTC()
	existing, ok := f.profiles[p.Key]
	if !ok {
		existing = &model.Profile{ID: p.Key.Decode(), CreatedAt: now}
		f.profiles[p.Key] = existing
	}
	existing.Email = p.Email
	existing.Username = p.Username
	if p.ProfilePictureURL.Set {
		existing.ProfilePictureURL = p.ProfilePictureURL.Value
	}
	if p.Country.Set {
		existing.Country = p.Country.Value
	}
	existing.UpdatedAt = now

	out := *existing
	return &out, nil
}

func (f *fakeStore) InsertProfile(_ context.Context, p repository.ProfileUpsert) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("InsertProfile"); err != nil {
		return nil, err
	}
	if existing, ok := f.profiles[p.Key]; ok {
		out := *existing
		return &out, nil
	}
	if f.usernameHeldByOther(p.Username, p.Key) {
		return nil, apperror.Conflict("profile", "username "+p.Username+" is taken")
	}

	now := time.Now().UTC()
	profile := &model.Profile{
		ID:                p.Key.Decode(),
		Email:             p.Email,
		Username:          p.Username,
		ProfilePictureURL: p.ProfilePictureURL.Value,
		Country:           p.Country.Value,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	f.profiles[p.Key] = profile
	out := *profile
	return &out, nil
}

func (f *fakeStore) GetProfile(_ context.Context, key identity.Key) (*model.Profile, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetProfile"); err != nil {
		return nil, false, err
	}
	p, ok := f.profiles[key]
	if !ok {
		return nil, false, nil
	}
	out := *p
	return &out, true, nil
}

func (f *fakeStore) UsernameOwner(_ context.Context, username string) (identity.Key, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UsernameOwner"); err != nil {
		return "", false, err
	}
	for key, p := range f.profiles {
		if p.Username == username {
			return key, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeStore) usernameHeldByOther(username string, key identity.Key) bool {
	for k, p := range f.profiles {
		if p.Username == username && k != key {
			return true
		}
	}
	return false
}

func (f *fakeStore) HasEntry(_ context.Context, user identity.Key) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HasEntry"); err != nil {
		return false, err
	}
	return f.entryOf(user) != nil, nil
}

func (f *fakeStore) CreateEntry(_ context.Context, user identity.Key, imageURL string, description *string) (*model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateEntry"); err != nil {
		return nil, err
	}
	if f.entryOf(user) != nil {
		return nil, apperror.AlreadyExists("entry")
	}
	if _, ok := f.profiles[user]; !ok {
		return nil, apperror.ValidationFailed("userId", "a profile is required before submitting an entry")
	}

	e := &model.Entry{
		ID:          xid.New().String(),
		UserID:      user.Decode(),
		ImageURL:    imageURL,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	f.entries[e.ID] = e
	f.owners[e.ID] = user

	if f.landThenFail["CreateEntry"] {
		delete(f.landThenFail, "CreateEntry")
		return nil, apperror.Storage("creating entry", errLocked)
	}
	out := *e
	return &out, nil
}

func (f *fakeStore) GetEntryByUser(_ context.Context, user identity.Key) (*model.Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetEntryByUser"); err != nil {
		return nil, false, err
	}
	e := f.entryOf(user)
	if e == nil {
		return nil, false, nil
	}
	out := *e
	return &out, true, nil
}

func (f *fakeStore) ListEntries(_ context.Context, opts repository.ListOptions) ([]model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListEntries"); err != nil {
		return nil, err
	}
	all := make([]model.Entry, 0, len(f.entries))
	for _, e := range f.entries {
		all = append(all, *e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if opts.Offset >= len(all) {
		return []model.Entry{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (f *fakeStore) DeleteEntry(_ context.Context, user identity.Key, entryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteEntry"); err != nil {
		return false, err
	}
	if f.owners[entryID] != user {
		return false, nil
	}
	delete(f.entries, entryID)
	delete(f.owners, entryID)
	return true, nil
}

func (f *fakeStore) HasVoted(_ context.Context, user identity.Key, entryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("HasVoted"); err != nil {
		return false, err
	}
	return f.votes[string(user)+"|"+entryID], nil
}

func (f *fakeStore) VotedEntries(_ context.Context, user identity.Key, entryIDs []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("VotedEntries"); err != nil {
		return nil, err
	}
	voted := map[string]bool{}
	for _, id := range entryIDs {
		if f.votes[string(user)+"|"+id] {
			voted[id] = true
		}
	}
	return voted, nil
}

func (f *fakeStore) CastVote(_ context.Context, user identity.Key, entryID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CastVote"); err != nil {
		return 0, err
	}
	e, ok := f.entries[entryID]
	if !ok {
		return 0, apperror.NotFound("entry", entryID)
	}
	if f.owners[entryID] == user {
		return 0, apperror.Forbidden("you cannot vote for your own entry")
	}
	k := string(user) + "|" + entryID
	if f.votes[k] {
		return 0, apperror.AlreadyVoted(entryID)
	}
	f.votes[k] = true
	e.VotesCount++

	if f.landThenFail["CastVote"] {
		delete(f.landThenFail, "CastVote")
		return 0, apperror.Storage("committing vote", errLocked)
	}
	return e.VotesCount, nil
}

func (f *fakeStore) VoteCount(_ context.Context, entryID string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("VoteCount"); err != nil {
		return 0, false, err
	}
	e, ok := f.entries[entryID]
	if !ok {
		return 0, false, nil
	}
	return e.VotesCount, true, nil
}

func (f *fakeStore) entryOf(user identity.Key) *model.Entry {
	for id, owner := range f.owners {
		if owner == user {
			return f.entries[id]
		}
	}
	return nil
}

// =========================================================================
// FAKE OBJECT STORE
// =========================================================================

var _ storage.ObjectStore = (*fakeObjects)(nil)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Put(_ context.Context, key, _ string, r io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return "", f.putErr
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return "", err
	}
	f.objects[key] = buf.Bytes()
	return "http://localhost:8080/uploads/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry keeps retry tests quick.
func fastRetry(r *retrier) { r.base = time.Millisecond }

// pngBytes is the smallest header mimetype recognises as image/png.
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// seedProfile stores a profile for userID directly in the fake.
func seedProfile(f *fakeStore, userID, username string) identity.Key {
	key := identity.Encode(userID)
	f.profiles[key] = &model.Profile{ID: userID, Username: username, CreatedAt: time.Now().UTC()}
	return key
}
