package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/ecochallenge/internal/apperror"
	"github.com/sakif/ecochallenge/internal/identity"
	"github.com/sakif/ecochallenge/internal/model"
	"github.com/sakif/ecochallenge/internal/repository"
)

var _ repository.EntryRepository = (*DB)(nil)

const entryColumns = `e.id, e.user_id, e.image_url, e.description, e.votes_count, e.created_at`

// HasEntry reports whether user has submitted an entry.
func (db *DB) HasEntry(ctx context.Context, user identity.Key) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM entries WHERE user_id = ?)`, user.String(),
	).Scan(&exists)
	if err != nil {
		return false, apperror.Storage("checking entry", err)
	}
	return exists, nil
}

// CreateEntry inserts a new entry with votes_count = 0.
//
// KEY CONCEPTS:
//
//  1. ID GENERATION WITH xid:
//     20 URL-safe chars that sort by creation time, so "id DESC" is a
//     usable tie-break when two entries share a created_at.
//
//  2. THE CONSTRAINT IS THE CHECK:
//     entries.user_id is UNIQUE. A second insert for the same user fails
//     inside SQLite and comes back as AlreadyExists, no matter how many
//     requests raced past HasEntry.
//
//  3. FOREIGN KEY:
//     user_id references user_profiles(id). Without a profile the insert
//     fails with a FOREIGN KEY error, reported as a validation failure.
func (db *DB) CreateEntry(ctx context.Context, user identity.Key, imageURL string, description *string) (*model.Entry, error) {
	entry := &model.Entry{
		ID:          xid.New().String(),
		UserID:      user.Decode(),
		ImageURL:    imageURL,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, image_url, description, votes_count, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		entry.ID,
		user.String(),
		entry.ImageURL,
		entry.Description,
		entry.CreatedAt,
	)
	if err != nil {
		switch classify(err) {
		case constraintUnique:
			return nil, apperror.AlreadyExists("entry")
		case constraintForeignKey:
			return nil, apperror.ValidationFailed("userId", "a profile is required before submitting an entry")
		}
		return nil, apperror.Storage("creating entry", err)
	}

	return entry, nil
}

// GetEntryByUser returns the single entry owned by user.
func (db *DB) GetEntryByUser(ctx context.Context, user identity.Key) (*model.Entry, bool, error) {
	var e model.Entry
	var userID string

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries e WHERE e.user_id = ?`,
		user.String(),
	).Scan(
		&e.ID,
		&userID,
		&e.ImageURL,
		&e.Description,
		&e.VotesCount,
		&e.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, apperror.Storage("getting entry", err)
	}

	e.UserID = identity.Decode(userID)
	return &e, true, nil
}

// ListEntries returns entries newest first, each with its author's public
// profile fields when the profile exists.
//
// An empty page is an empty, non-nil slice so it encodes as [] rather than null.
func (db *DB) ListEntries(ctx context.Context, opts repository.ListOptions) ([]model.Entry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+entryColumns+`, p.username, p.profile_picture_url
		 FROM entries e
		 LEFT JOIN user_profiles p ON p.id = e.user_id
		 ORDER BY e.created_at DESC, e.id DESC
		 LIMIT ? OFFSET ?`,
		opts.Limit,
		opts.Offset,
	)
	if err != nil {
		return nil, apperror.Storage("listing entries", err)
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		var e model.Entry
		var userID string
		var username sql.NullString
		var picture *string

		if err := rows.Scan(
			&e.ID,
			&userID,
			&e.ImageURL,
			&e.Description,
			&e.VotesCount,
			&e.CreatedAt,
			&username,
			&picture,
		); err != nil {
			return nil, apperror.Storage("scanning entry", err)
		}

		e.UserID = identity.Decode(userID)
		if username.Valid {
			e.Author = &model.Author{Username: username.String, ProfilePictureURL: picture}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, apperror.Storage("iterating entries", err)
	}

	return entries, nil
}

// DeleteEntry removes entryID only when it belongs to user. Votes on it go
// with it (ON DELETE CASCADE).
func (db *DB) DeleteEntry(ctx context.Context, user identity.Key, entryID string) (bool, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM entries WHERE id = ? AND user_id = ?`,
		entryID, user.String(),
	)
	if err != nil {
		return false, apperror.Storage("deleting entry", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, apperror.Storage("deleting entry", err)
	}
	return n > 0, nil
}
