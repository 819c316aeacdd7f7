// Package repository declares the storage contracts of the Profile & Entry Store.
//
// Every user reference is an identity.Key. Implementations must enforce, as
// storage constraints rather than application checks:
//   - one profile per key and one profile per username
//   - one entry per user
//   - one vote per (user, entry), cast together with a +1 on votes_count
//
// Reads return (value, found, err). A miss is found == false with a nil error.
package repository

import (
	"context"

	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ProfileUpsert is the input of ProfileRepository.UpsertProfile. Email and
// Username are always written. The optional fields are written only when Set.
type ProfileUpsert struct {
	Key               identity.Key
	Email             string
	Username          string
	ProfilePictureURL model.Optional[*string]
	Country           model.Optional[*string]
}

type ProfileRepository interface {
	UpsertProfile(ctx context.Context, p ProfileUpsert) (*model.Profile, error)
	// InsertProfile creates the profile unless one already exists for p.Key,
	// and returns the stored row either way.
	InsertProfile(ctx context.Context, p ProfileUpsert) (*model.Profile, error)
	GetProfile(ctx context.Context, key identity.Key) (*model.Profile, bool, error)
	// UsernameOwner returns the key holding username, or found == false.
	UsernameOwner(ctx context.Context, username string) (identity.Key, bool, error)
}

type EntryRepository interface {
	HasEntry(ctx context.Context, user identity.Key) (bool, error)
	CreateEntry(ctx context.Context, user identity.Key, imageURL string, description *string) (*model.Entry, error)
	GetEntryByUser(ctx context.Context, user identity.Key) (*model.Entry, bool, error)
	ListEntries(ctx context.Context, opts ListOptions) ([]model.Entry, error)
	// DeleteEntry removes the entry only if it belongs to user. It reports
	// whether a row was removed; a non-owner call removes nothing.
	DeleteEntry(ctx context.Context, user identity.Key, entryID string) (bool, error)
}

type VoteRepository interface {
	HasVoted(ctx context.Context, user identity.Key, entryID string) (bool, error)
	// CastVote records the vote and increments votes_count in one transaction
	// and returns the new count.
	CastVote(ctx context.Context, user identity.Key, entryID string) (int, error)
	// VotedEntries returns which of entryIDs user has voted for. Entries
	// without a vote are absent from the map.
	VotedEntries(ctx context.Context, user identity.Key, entryIDs []string) (map[string]bool, error)
	// VoteCount returns the entry's votes_count.
	VoteCount(ctx context.Context, entryID string) (int, bool, error)
}

// Store is everything the services need from one backing database.
type Store interface {
	ProfileRepository
	EntryRepository
	VoteRepository
	Ping(ctx context.Context) error
}
